package identifier

import (
	"bytes"
	"crypto/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/colabsync/colabsync/pkg/encoding"
)

const (
	// PrefixSessionNegotiation is the prefix used for session negotiation
	// identifiers.
	PrefixSessionNegotiation = "sneg"
	// PrefixProjectNegotiation is the prefix used for project negotiation
	// identifiers.
	PrefixProjectNegotiation = "pneg"
	// PrefixProject is the prefix used for shared project identifiers.
	PrefixProject = "proj"

	// requiredPrefixLength is the required length for identifier prefixes.
	requiredPrefixLength = 4
	// collisionResistantLength is the number of random bytes needed to ensure
	// collision-resistance in an identifier.
	collisionResistantLength = 32
	// targetBase62Length is the target length for the Base62-encoded portion
	// of the identifier. Shorter encodings are left-padded with zeros.
	targetBase62Length = 43
)

// New generates a new collision-resistant identifier with the specified prefix.
// The prefix must consist of exactly four lowercase ASCII letters.
func New(prefix string) (string, error) {
	// Validate the prefix.
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	}
	for _, r := range prefix {
		if r < 'a' || r > 'z' {
			return "", errors.New("invalid prefix character")
		}
	}

	// Create the random value.
	value := make([]byte, collisionResistantLength)
	if _, err := rand.Read(value); err != nil {
		return "", errors.Wrap(err, "unable to read random data")
	}

	// Encode the random value and left-pad it to the target length.
	encoded := encoding.EncodeBase62(value)
	builder := &strings.Builder{}
	builder.Grow(requiredPrefixLength + 1 + targetBase62Length)
	builder.WriteString(prefix)
	builder.WriteByte('_')
	for i := targetBase62Length - len(encoded); i > 0; i-- {
		builder.WriteByte(encoding.Base62Alphabet[0])
	}
	builder.WriteString(encoded)

	// Success.
	return builder.String(), nil
}

// IsValid determines whether or not a string is a valid identifier.
func IsValid(value string) bool {
	// Check the length.
	if len(value) != requiredPrefixLength+1+targetBase62Length {
		return false
	}

	// Check the prefix and separator.
	for _, r := range value[:requiredPrefixLength] {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	if value[requiredPrefixLength] != '_' {
		return false
	}

	// Check that the encoded portion decodes to a value that fits in the
	// random data length. Zero padding decodes to leading zero bytes.
	decoded, err := encoding.DecodeBase62(value[requiredPrefixLength+1:])
	if err != nil {
		return false
	}
	return len(bytes.TrimLeft(decoded, "\x00")) <= collisionResistantLength
}
