// Package sseutil provides server-sent-event framing helpers shared by the
// stream decoder and its tests.
package sseutil

import "bytes"

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Payload extracts the JSON payload from one SSE line.
//
// Only `data:` lines carry payloads; everything else (blank keep-alives,
// `event:` lines, comments) returns nil. The literal [DONE] sentinel also
// returns nil. The caller is responsible for validating the JSON itself.
func Payload(line []byte) []byte {
	trimmed := bytes.TrimSpace(line)
	if !bytes.HasPrefix(trimmed, dataPrefix) {
		return nil
	}
	payload := bytes.TrimSpace(trimmed[len(dataPrefix):])
	if len(payload) == 0 || bytes.Equal(payload, doneMarker) {
		return nil
	}
	return payload
}
