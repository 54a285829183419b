package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "app.log")

	if err := Init(Config{Level: "debug", OutputPaths: []string{path}}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() { _ = Sync() })

	Named("chain").Debug("resolved signer", "address", "0xabc")
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := strings.TrimSpace(string(content))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("decode entry %q: %v", line, err)
	}
	if entry["component"] != "chain" {
		t.Fatalf("expected component attribute, got %v", entry["component"])
	}
	if entry["msg"] != "resolved signer" {
		t.Fatalf("unexpected message %v", entry["msg"])
	}
}

func TestAuditRequiresPath(t *testing.T) {
	err := Init(Config{Audit: AuditConfig{Enabled: true}})
	if err == nil {
		t.Fatal("expected error when audit path is empty")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
	}
	for input, want := range cases {
		if got := parseLevel(input).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}
