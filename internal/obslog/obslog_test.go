package obslog

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewFallsBackToInfoOnUnrecognizedLevel(t *testing.T) {
	log := New("not-a-level", false)
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("expected info level fallback, got %s", log.GetLevel())
	}
}

func TestNewVerboseForcesAtLeastDebug(t *testing.T) {
	log := New("warn", true)
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("verbose should force at least debug, got %s", log.GetLevel())
	}
}

func TestZoneOutcomeLogsErrorFieldsOnFailure(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", false)
	log.SetOutput(&buf)

	ZoneOutcome(log, "example.com.", "", 0, 12, "ValidationError", "boom")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("example.com.")) {
		t.Errorf("expected zone name in log output, got %q", out)
	}
	if !bytes.Contains([]byte(out), []byte("ValidationError")) {
		t.Errorf("expected error kind in log output, got %q", out)
	}
}

func TestZoneOutcomeLogsActionFieldsOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	log := New("debug", false)
	log.SetOutput(&buf)

	ZoneOutcome(log, "example.com.", "PATCH_ZONE", 3, 42, "", "")

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("PATCH_ZONE")) {
		t.Errorf("expected action in log output, got %q", out)
	}
}
