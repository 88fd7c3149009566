package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"development", "bogus", zerolog.DebugLevel},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := SetupWithWriter(tt.env, tt.level, &buf)
		if got := logger.GetLevel(); got != tt.want {
			t.Fatalf("Setup(%q, %q) level = %v, want %v", tt.env, tt.level, got, tt.want)
		}
	}
}

func TestSetupProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", "", &buf)
	logger.Info().Int("pin", 22).Msg("line armed")

	out := buf.String()
	if !strings.Contains(out, `"pin":22`) || !strings.Contains(out, `"message":"line armed"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
