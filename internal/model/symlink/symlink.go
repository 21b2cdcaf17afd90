// Package symlink implements the entity codec for the Symlink CRDT: a single
// LWW register holding the link target, keyed by symlink/<ino>.
package symlink

import "github.com/AntidoteDB/elmerfs/internal/antidotec"

const targetField = "target"

// Key returns the entity key symlink/<ino>.
func Key(ino uint64) antidotec.Key { return antidotec.SymlinkKey(ino) }

// Create writes the link target register for a brand-new symlink inode.
func Create(ino uint64, target string) antidotec.Op {
	return antidotec.PutRegister{Key: Key(ino), Field: targetField, Value: []byte(target)}
}

// Remove resets the register, a no-op if the inode was never a symlink.
func Remove(ino uint64) antidotec.Op {
	return antidotec.Reset{Key: Key(ino)}
}

// Read returns the antidotec.Key to read in order to later Decode this
// symlink's target.
func Read(ino uint64) antidotec.Key { return Key(ino) }

// Decode parses reply[idx] into the link target string. It returns
// ("", false) iff the symlink entity does not exist.
func Decode(replies []antidotec.Reply, idx int) (string, bool) {
	if idx >= len(replies) {
		return "", false
	}
	r := replies[idx]
	if !r.Exists {
		return "", false
	}
	target, ok := r.Registers[targetField]
	if !ok {
		return "", false
	}
	return string(target), true
}
