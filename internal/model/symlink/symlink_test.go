package symlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntidoteDB/elmerfs/internal/antidotec"
)

func TestCreateThenDecodeRoundTrips(t *testing.T) {
	op := Create(4, "../other/target")
	pr := op.(antidotec.PutRegister)

	reply := antidotec.Reply{Exists: true, Registers: map[string][]byte{
		targetField: pr.Value,
	}}

	target, ok := Decode([]antidotec.Reply{reply}, 0)
	require.True(t, ok)
	assert.Equal(t, "../other/target", target)
}

func TestDecodeAbsentFails(t *testing.T) {
	_, ok := Decode([]antidotec.Reply{{Exists: false}}, 0)
	assert.False(t, ok)
}

func TestDecodeMissingRegisterFails(t *testing.T) {
	reply := antidotec.Reply{Exists: true, Registers: map[string][]byte{}}
	_, ok := Decode([]antidotec.Reply{reply}, 0)
	assert.False(t, ok)
}

func TestDecodeOutOfRangeFails(t *testing.T) {
	_, ok := Decode(nil, 0)
	assert.False(t, ok)
}
