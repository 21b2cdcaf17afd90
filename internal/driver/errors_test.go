package driver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorStringWithoutWrapped(t *testing.T) {
	err := notFound("lookup")
	assert.Equal(t, "lookup: not_found", err.Error())
}

func TestErrorStringWithWrapped(t *testing.T) {
	wrapped := errors.New("boom")
	err := transport("write", wrapped)
	assert.Equal(t, "write: transport: boom", err.Error())
}

func TestErrorUnwrapReturnsWrapped(t *testing.T) {
	wrapped := errors.New("boom")
	err := transport("write", wrapped)
	assert.Same(t, wrapped, err.Unwrap())
}

func TestKindStringCoversEveryConstant(t *testing.T) {
	for _, k := range []Kind{NotFound, Exists, InvalidArg, InoAllocFailed, Transport, System} {
		assert.NotEqual(t, "unknown", k.String())
	}
}
