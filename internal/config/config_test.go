package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

func TestLoadWritesDefaults(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("defaults were not written: %v", err)
	}
	if cfg.Throttle.WindowSeconds != 180 {
		t.Errorf("expected 180s throttle window, got %d", cfg.Throttle.WindowSeconds)
	}
	if cfg.Scan.HistoryDepth != 20 {
		t.Errorf("expected history depth 20, got %d", cfg.Scan.HistoryDepth)
	}
	if !cfg.Console.Headless {
		t.Error("expected headless by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := tempConfigPath(t)
	t.Setenv("DUOKE_EMAIL", "op@example.com")
	t.Setenv("DUOKE_PASSWORD", "hunter2")
	t.Setenv("HEADLESS", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Console.Email != "op@example.com" {
		t.Errorf("email override not applied: %q", cfg.Console.Email)
	}
	if cfg.Console.Headless {
		t.Error("HEADLESS=false override not applied")
	}
}

func TestSaveStripsCredentials(t *testing.T) {
	path := tempConfigPath(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Console.Email = "op@example.com"
	cfg.Console.Password = "hunter2"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "" {
		t.Fatal("empty config file")
	}
	for _, secret := range []string{"op@example.com", "hunter2"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("credential %q leaked into config file", secret)
		}
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"console": map[string]any{"url": "https://example.com", "headless": true},
		"label":   "gpt",
	}
	flat := Flatten(nested)
	if flat["console.url"] != "https://example.com" {
		t.Errorf("flatten lost console.url: %v", flat)
	}
	back := Unflatten(flat)
	console, ok := back["console"].(map[string]any)
	if !ok || console["headless"] != true {
		t.Errorf("unflatten result wrong: %v", back)
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"gemini.api_key": "AIzaSyExample1234",
		"label":          "gpt",
	}
	masked := MaskSecrets(flat)
	if masked["gemini.api_key"] != "***1234" {
		t.Errorf("expected masked key, got %v", masked["gemini.api_key"])
	}
	if masked["label"] != "gpt" {
		t.Error("non-secret value should be untouched")
	}
}

func TestSetValue(t *testing.T) {
	path := tempConfigPath(t)
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "scan.max_conversations", "120"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scan.MaxConversations != 120 {
		t.Errorf("expected 120, got %d", cfg.Scan.MaxConversations)
	}

	if err := SetValue(path, "nope.nope", "1"); err == nil {
		t.Error("unknown key should fail")
	}
}
