package configuration

import (
	"github.com/dustin/go-humanize"

	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that can be specified in configuration files using
// human-readable sizes (e.g. "64 KiB" or "1MB") or plain integers.
type ByteSize uint64

// UnmarshalYAML implements yaml.Unmarshaler.UnmarshalYAML.
func (s *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	// Extract the scalar value.
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}

	// Parse the size.
	value, err := humanize.ParseBytes(text)
	if err != nil {
		return err
	}

	// Success.
	*s = ByteSize(value)
	return nil
}

// MarshalYAML implements yaml.Marshaler.MarshalYAML.
func (s ByteSize) MarshalYAML() (interface{}, error) {
	return humanize.IBytes(uint64(s)), nil
}

// String provides a human-readable representation of the size.
func (s ByteSize) String() string {
	return humanize.IBytes(uint64(s))
}
