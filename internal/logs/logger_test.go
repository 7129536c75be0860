package logs

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/era-ai/era/pkg/types"
)

func TestNewFansOutToFile(t *testing.T) {
	var terminal bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "era.log")

	logger, closer, err := New(types.LoggingConfig{Level: "info", File: file}, &terminal)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("session finished", "outcome", "success")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	if strings.Contains(terminal.String(), "hidden") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(terminal.String(), "msg=\"session finished\" outcome=success") {
		t.Errorf("terminal output = %q", terminal.String())
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("file record is not JSON: %v\n%s", err, data)
	}
	if record["msg"] != "session finished" || record["outcome"] != "success" {
		t.Errorf("record = %v", record)
	}
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(types.LoggingConfig{Level: "debug"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug record dropped at debug level")
	}

	if _, _, err := New(types.LoggingConfig{Level: "loud"}, &buf); err == nil {
		t.Error("expected an error for an unknown level")
	}
}
