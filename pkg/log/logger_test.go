// Structured logging tests
//
// Copyright (C) 2026  FileButtons Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	logger := New("test")
	logger.SetWriter(buf)
	logger.SetColorize(false)
	return logger
}

func TestLoggerBasic(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetLevel(DEBUG)

	logger.Info("hello %s", "world")

	output := buf.String()
	if !strings.Contains(output, "level=info") {
		t.Errorf("expected info level, got: %s", output)
	}
	if !strings.Contains(output, "component=test") {
		t.Errorf("expected component field, got: %s", output)
	}
	if !strings.Contains(output, "hello world") {
		t.Errorf("expected message 'hello world', got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.SetLevel(INFO)
	logger.Debug("debug message")
	if buf.Len() != 0 {
		t.Errorf("expected DEBUG to be filtered, got: %s", buf.String())
	}

	logger.Warn("warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("expected WARN to pass, got: %s", buf.String())
	}

	buf.Reset()
	logger.SetLevel(ERROR)
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected INFO to be filtered at ERROR, got: %s", buf.String())
	}
	if logger.GetLevel() != ERROR {
		t.Errorf("GetLevel = %v", logger.GetLevel())
	}
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetFormat(FormatJSON)

	logger.WithFields(Fields{"channel": "left", "event": 3}).Info("accepted")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "accepted" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["channel"] != "left" {
		t.Errorf("channel = %v", entry["channel"])
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v", entry["component"])
	}
}

func TestEntryWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.WithError(errors.New("pin busy")).WithField("pin", "16").Warn("setup failed")

	output := buf.String()
	if !strings.Contains(output, "error=pin busy") {
		t.Errorf("expected error field, got: %s", output)
	}
	if !strings.Contains(output, "pin=16") {
		t.Errorf("expected pin field, got: %s", output)
	}
}

func TestWithPrefixSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	root := newTestLogger(&buf)
	child := root.WithPrefix("gpio")

	child.Info("claimed")
	if !strings.Contains(buf.String(), "component=gpio") {
		t.Errorf("expected child component, got: %s", buf.String())
	}

	buf.Reset()
	root.SetLevel(WARN)
	child.Info("filtered")
	if buf.Len() != 0 {
		t.Errorf("expected child to follow root level, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("FILEBUTTONS_LOG_LEVEL", "debug")
	t.Setenv("FILEBUTTONS_LOG_FORMAT", "json")

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	ConfigureFromEnv(logger)

	if logger.GetLevel() != DEBUG {
		t.Errorf("level = %v, want DEBUG", logger.GetLevel())
	}
	logger.Debug("x")
	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected JSON output, got: %s", buf.String())
	}
}
