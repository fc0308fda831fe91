package sseutil

import (
	"bytes"
	"testing"
)

func TestPayload(t *testing.T) {
	cases := []struct {
		name string
		line string
		want []byte
	}{
		{"data line", `data: {"type":"ping"}`, []byte(`{"type":"ping"}`)},
		{"no space after colon", `data:{"a":1}`, []byte(`{"a":1}`)},
		{"done sentinel", "data: [DONE]", nil},
		{"event line", "event: message_start", nil},
		{"comment", ": keep-alive", nil},
		{"blank", "", nil},
		{"empty data", "data: ", nil},
		{"id line", "id: 42", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Payload([]byte(tc.line))
			if !bytes.Equal(got, tc.want) {
				t.Fatalf("Payload(%q) = %q, want %q", tc.line, got, tc.want)
			}
		})
	}
}
