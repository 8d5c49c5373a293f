package identifier

import (
	"math"
	"strings"
	"testing"
)

// TestLengthRelationships tests the mathematical relationship between
// collisionResistantLength and targetBase62Length.
func TestLengthRelationships(t *testing.T) {
	if targetBase62Length != int(math.Ceil(collisionResistantLength*8*math.Log(2)/math.Log(62))) {
		t.Error("target base62 length incorrect for collision resistant length")
	}
}

// TestIdentifierCreation tests identifier creation.
func TestIdentifierCreation(t *testing.T) {
	for _, prefix := range []string{PrefixSessionNegotiation, PrefixProjectNegotiation, PrefixProject} {
		identifier, err := New(prefix)
		if err != nil {
			t.Fatal("unable to create identifier:", err)
		}
		if !strings.HasPrefix(identifier, prefix+"_") {
			t.Error("identifier does not have correct prefix:", identifier)
		}
		if !IsValid(identifier) {
			t.Error("generated identifier classified as invalid:", identifier)
		}
	}
}

// TestIdentifierUniqueness tests that consecutive identifiers differ.
func TestIdentifierUniqueness(t *testing.T) {
	first, err := New(PrefixProject)
	if err != nil {
		t.Fatal("unable to create identifier:", err)
	}
	second, err := New(PrefixProject)
	if err != nil {
		t.Fatal("unable to create identifier:", err)
	}
	if first == second {
		t.Error("identifiers collided")
	}
}

// TestInvalidPrefixes tests that identifier creation fails with invalid
// prefixes.
func TestInvalidPrefixes(t *testing.T) {
	for _, prefix := range []string{"xyz", "abcde", "ABCD", "ab1d"} {
		if _, err := New(prefix); err == nil {
			t.Error("invalid prefix accepted:", prefix)
		}
	}
}

// TestIsValid tests that IsValid behaves correctly for an assortment of values.
func TestIsValid(t *testing.T) {
	testCases := []struct {
		value       string
		expectValid bool
	}{
		{"", false},
		{"abc", false},
		{"proj_jndACgB0qejgkorhU21q4oA56QvEfqV1p2yBH9N40h+", false},
		{"proj-jndACgB0qejgkorhU21q4oA56QvEfqV1p2yBH9N40hK", false},
		{"PROJ_jndACgB0qejgkorhU21q4oA56QvEfqV1p2yBH9N40hK", false},
		{"proj_jndACgB0qejgkorhU21q4oA56QvEfqV1p2yBH9N40hK", true},
		{"proj_" + strings.Repeat("0", targetBase62Length), true},
		{"proj_" + strings.Repeat("Z", targetBase62Length), false},
	}
	for _, testCase := range testCases {
		if valid := IsValid(testCase.value); valid != testCase.expectValid {
			t.Errorf("identifier %q classified incorrectly: %t", testCase.value, valid)
		}
	}
}
