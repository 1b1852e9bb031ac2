package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assistchat/internal/config"
)

func TestRootRegistersCommands(t *testing.T) {
	want := map[string]bool{"serve": false, "check": false, "chat": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("command %q not registered", name)
		}
	}
}

func TestCheckRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"agent":{"id":"asst_1"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ASSISTCHAT_API_KEY", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"check", "--config", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key validation error, got %v", err)
	}
}

func TestEndpointLabel(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = &config.Config{}
	if got := endpointLabel(); got != "api.openai.com" {
		t.Fatalf("unexpected label %q", got)
	}
	cfg = &config.Config{Service: config.ServiceConfig{
		Endpoint:   "https://acme.openai.azure.com",
		Azure:      true,
		APIVersion: "2024-05-01-preview",
	}}
	if got := endpointLabel(); got != "https://acme.openai.azure.com (azure, 2024-05-01-preview)" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestTurnTimeoutCoversEveryRemoteCall(t *testing.T) {
	c := &config.Config{BasicConfig: config.BasicConfig{PollTimeout: 60}, Service: config.ServiceConfig{RequestTimeout: 30}}
	if got, want := turnTimeout(c), 60*time.Second+5*30*time.Second; got != want {
		t.Fatalf("turnTimeout = %s, want %s", got, want)
	}
}
