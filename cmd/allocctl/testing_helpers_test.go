package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/fatih/color"
)

// resetFlags restores every package-level flag to its zero value.
func resetFlags() {
	configPath = ""
	verbose, quiet, jsonOut, noColor = false, false, false, true
	logLevel, logJSON = "", false
	resetScenarioFlags()
	stressWorkers = 0
	layoutWidth, layoutList = 64, false
	metricsNamespace = "blockalloc"
	color.NoColor = true
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		defer close(done)
		_, _ = buf.ReadFrom(r)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done
	r.Close()

	return buf.String(), fnErr
}

// decodeJSON unmarshals output into v
func decodeJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}
