// Package json wraps the JSON codec used across claude-bridge.
// All internal packages import this instead of encoding/json so the
// implementation can be swapped in one place.
package json

import "github.com/bytedance/sonic"

// Marshal encodes v using the default sonic configuration.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// MarshalIndent encodes v with indentation, for files meant to be read by humans.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return sonic.ConfigDefault.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
