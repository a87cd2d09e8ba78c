package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mferraretto/chatshopee22/internal/config"
)

func TestKeyDocsCoverEveryConfigKey(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	values, err := config.ListValues(cfg, true)
	if err != nil {
		t.Fatal(err)
	}

	for k := range values {
		if _, ok := keyDocs[k]; ok {
			continue
		}
		if _, ok := envOnlyKeys[k]; ok {
			continue
		}
		t.Errorf("key %q has no documentation entry", k)
	}
	for k := range keyDocs {
		if _, ok := values[k]; !ok {
			t.Errorf("documented key %q does not exist in the config", k)
		}
	}
}

func TestDrainEngineHitsStopEndpoint(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
	}))
	defer srv.Close()

	if !drainEngine(strings.TrimPrefix(srv.URL, "http://")) {
		t.Fatal("drain against a healthy server must report success")
	}
	if method != http.MethodPost || path != "/api/stop" {
		t.Errorf("request = %s %s, want POST /api/stop", method, path)
	}
}

func TestDrainEngineWithoutServer(t *testing.T) {
	if drainEngine("") {
		t.Error("empty address must not drain")
	}
	if drainEngine("127.0.0.1:1") {
		t.Error("unreachable server must not drain")
	}
}
