package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLevelMapsEverySeverityName(t *testing.T) {
	cases := map[string]slog.Level{
		"TRACE":   LevelTrace,
		"trace":   LevelTrace,
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarn,
		"WARN":    LevelWarn,
		"ERROR":   LevelError,
		"OFF":     LevelOff,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for name, want := range cases {
		v := newLevelVar(LevelInfo)
		setLevel(name, v)
		assert.Equal(t, want, v.Level(), "severity %q", name)
	}
}

func TestReplaceSeverityRenamesLevelKeyAndValue(t *testing.T) {
	a := replaceSeverity(nil, slog.Any(slog.LevelKey, LevelWarn))
	assert.Equal(t, "severity", a.Key)
	assert.Equal(t, "WARNING", a.Value.String())
}

func TestReplaceSeverityLeavesOtherAttrsAlone(t *testing.T) {
	a := replaceSeverity(nil, slog.String("op", "mkdir"))
	assert.Equal(t, "op", a.Key)
	assert.Equal(t, "mkdir", a.Value.String())
}

func TestInitDefaultsToJSONFormat(t *testing.T) {
	require := assert.New(t)
	err := Init(Config{Format: "json", Severity: "DEBUG"})
	require.NoError(err)
	require.NotNil(Default())
}

func TestInitTextFormat(t *testing.T) {
	assert.NoError(t, Init(Config{Format: "text", Severity: "INFO"}))
}
