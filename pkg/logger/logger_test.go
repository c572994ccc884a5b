package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestSetLogLevel(t *testing.T) {
	l := GetLogger()
	defer l.SetLevel(log.InfoLevel)

	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"WARN", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"bogus", log.InfoLevel},
		{"", log.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l.SetLogLevel(tt.in)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestForCarriesPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	For("network").Info("bridge created", "name", "br0")
	assert.Contains(t, buf.String(), "network")
	assert.Contains(t, buf.String(), "bridge created")
	assert.Contains(t, buf.String(), "name=br0")
}
