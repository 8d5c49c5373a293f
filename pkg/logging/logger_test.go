package logging

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

// captureOutput redirects the standard logger into a buffer for the duration
// of the callback.
func captureOutput(callback func()) string {
	buffer := &bytes.Buffer{}
	flags := log.Flags()
	writer := log.Writer()
	log.SetOutput(buffer)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(writer)
		log.SetFlags(flags)
	}()
	callback()
	return buffer.String()
}

// TestNilLogger tests that a nil logger doesn't panic or log.
func TestNilLogger(t *testing.T) {
	var logger *Logger
	output := captureOutput(func() {
		logger.Info("info")
		logger.Debugf("debug %d", 1)
		logger.Warn(errors.New("warning"))
		logger.Sublogger("child").Error(errors.New("error"))
	})
	if output != "" {
		t.Error("nil logger produced output:", output)
	}
	if logger.Level() != LevelDisabled {
		t.Error("nil logger has non-disabled level")
	}
}

// TestSubloggerPrefix tests that subloggers produce dotted prefixes and
// inherit levels.
func TestSubloggerPrefix(t *testing.T) {
	logger := NewLogger(LevelDebug).Sublogger("session").Sublogger("negotiation")
	if logger.Level() != LevelDebug {
		t.Fatal("sublogger did not inherit level")
	}
	output := captureOutput(func() {
		logger.Infof("step %s", "one")
	})
	if !strings.Contains(output, "[session.negotiation] step one") {
		t.Error("unexpected output:", output)
	}
}

// TestLevelFiltering tests that messages above the logger's level are dropped.
func TestLevelFiltering(t *testing.T) {
	logger := NewLogger(LevelWarn)
	output := captureOutput(func() {
		logger.Info("hidden info")
		logger.Debug("hidden debug")
		logger.Tracef("hidden trace")
		logger.Warnf("visible %s", "warning")
	})
	if strings.Contains(output, "hidden") {
		t.Error("filtered message was logged:", output)
	}
	if !strings.Contains(output, "visible warning") {
		t.Error("warning was not logged:", output)
	}
}

// TestNameToLevel tests round-tripping of level names.
func TestNameToLevel(t *testing.T) {
	for l := LevelDisabled; l <= LevelTrace; l++ {
		if parsed, ok := NameToLevel(l.String()); !ok || parsed != l {
			t.Error("level name round trip failed for", l)
		}
	}
	if _, ok := NameToLevel("loud"); ok {
		t.Error("invalid level name accepted")
	}
}
