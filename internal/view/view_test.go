package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeAppendsTagOnce(t *testing.T) {
	got := NameRef("foo.txt").Canonicalize("tenant1")
	assert.Equal(t, Name("foo.txt@tenant1"), got)
}

func TestCanonicalizeLeavesAlreadyTaggedNameAlone(t *testing.T) {
	got := NameRef("foo.txt@tenant1").Canonicalize("tenant2")
	assert.Equal(t, Name("foo.txt@tenant1"), got)
}

func TestNameStringStripsTag(t *testing.T) {
	n := Name("foo.txt@tenant1")
	assert.Equal(t, "foo.txt", n.String())
}

func TestNameStringWithoutTagIsUnchanged(t *testing.T) {
	n := Name("foo.txt")
	assert.Equal(t, "foo.txt", n.String())
}

func TestCanonicalizeRoundTripsThroughString(t *testing.T) {
	n := NameRef("a@b@c.txt").Canonicalize("tenant1")
	assert.Equal(t, "a@b@c.txt", n.String())
}
