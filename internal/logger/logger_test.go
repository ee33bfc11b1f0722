package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLevels(t *testing.T) {
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	log := New(&buf, false)
	log.Debug("hidden")
	log.Info("shown", "stage", "Resizing")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(buf.String(), "stage=Resizing") {
		t.Errorf("missing structured attribute in %q", buf.String())
	}

	buf.Reset()
	New(&buf, true).Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line missing with debug enabled")
	}
}

func TestNewDebugEnv(t *testing.T) {
	t.Setenv("DEBUG", "1")

	var buf bytes.Buffer
	New(&buf, false).Debug("from env")
	if !strings.Contains(buf.String(), "from env") {
		t.Error("DEBUG=1 should enable debug level")
	}
}
