package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockReportsFixedTime(t *testing.T) {
	c := NewFake(5 * time.Hour)
	assert.Equal(t, 5*time.Hour, c.Now())
	assert.Equal(t, 5*time.Hour, c.Now())
}

func TestFakeClockAdvance(t *testing.T) {
	c := NewFake(time.Hour)
	c.Advance(30 * time.Minute)
	assert.Equal(t, 90*time.Minute, c.Now())
}

func TestRealClockIsCloseToNow(t *testing.T) {
	c := RealClock{}
	before := time.Duration(time.Now().UnixNano())
	got := c.Now()
	after := time.Duration(time.Now().UnixNano())
	assert.GreaterOrEqual(t, got, before)
	assert.LessOrEqual(t, got, after)
}
