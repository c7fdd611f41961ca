package xtpl

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name           string
		level          string
		expectedOutput []string
		notExpected    []string
	}{
		{
			name:           "debug level shows all messages",
			level:          "debug",
			expectedOutput: []string{"DEBUG", "debug message", "INFO", "info message", "WARN", "warn message", "ERROR", "error message"},
		},
		{
			name:           "info level hides debug messages",
			level:          "info",
			expectedOutput: []string{"INFO", "info message", "WARN", "ERROR"},
			notExpected:    []string{"DEBUG", "debug message"},
		},
		{
			name:           "error level shows only errors",
			level:          "error",
			expectedOutput: []string{"ERROR", "error message"},
			notExpected:    []string{"info message", "warn message"},
		},
		{
			name:        "off silences everything",
			level:       "off",
			notExpected: []string{"error message"},
		},
		{
			name:           "unknown level falls back to info",
			level:          "verbose",
			expectedOutput: []string{"info message"},
			notExpected:    []string{"debug message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level)
			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			output := buf.String()
			for _, expected := range tt.expectedOutput {
				if !strings.Contains(output, expected) {
					t.Errorf("expected output to contain %q, got: %s", expected, output)
				}
			}
			for _, notExpected := range tt.notExpected {
				if strings.Contains(output, notExpected) {
					t.Errorf("expected output not to contain %q, got: %s", notExpected, output)
				}
			}
		})
	}
}

func TestSetLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))

	tpl, err := Compile(`<tpl for="items">{.}</tpl>`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if _, err := tpl.Render(Data{"items": []interface{}{1}}); err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	if logs.FilterMessage("found block").Len() != 2 {
		t.Errorf("expected two found block entries, got %d", logs.FilterMessage("found block").Len())
	}
	compiled := logs.FilterMessage("compiled template").All()
	if len(compiled) != 1 {
		t.Fatalf("expected one compiled template entry, got %d", len(compiled))
	}
	if compiled[0].ContextMap()["blocks"] != int64(2) {
		t.Errorf("blocks field = %v, want 2", compiled[0].ContextMap()["blocks"])
	}
	if logs.FilterMessage("rendered template").Len() != 1 {
		t.Error("expected a rendered template entry")
	}

	SetLogger(nil)
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("nil logger should silence logging")
	}
}

func TestWithLoggerOption(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	if _, err := Compile("plain", WithLogger(zap.New(core))); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	entries := logs.FilterMessage("compiled template").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["template"]; !ok {
		t.Error("entries should carry the template id")
	}
}
