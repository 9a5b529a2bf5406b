package logger

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLogLevel("WARN")
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "timestamp=")
}

func TestErrorLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	base := fmt.Errorf("ssh exited with 1\nPermission denied")
	err := fmt.Errorf("deploy to web1: %w", base)

	ErrorLines(l.Logger, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "deploy to web1")
	assert.NotContains(t, lines[0], "ssh exited")
	assert.Contains(t, lines[1], "ssh exited with 1")
	assert.Contains(t, lines[2], "Permission denied")
}

func TestLinesSkipsBlank(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	Lines(l.Logger, l.Level(), "a\n\n  \nb\n")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}
