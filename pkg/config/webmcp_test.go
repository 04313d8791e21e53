package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWebMCP_Defaults(t *testing.T) {
	cfg, err := LoadWebMCP("")
	if err != nil {
		t.Fatalf("LoadWebMCP: %v", err)
	}
	if cfg.GatewayURL != "http://localhost:8080" {
		t.Errorf("gateway url = %q, want default", cfg.GatewayURL)
	}
	if !cfg.Tools.Items || !cfg.Tools.ItemSets || !cfg.Tools.Media || !cfg.Tools.Users || !cfg.Tools.Vocabularies {
		t.Errorf("tool groups should default on: %+v", cfg.Tools)
	}
	if !cfg.Tools.ConfirmDestructive {
		t.Error("destructive confirmation should default on")
	}
}

func TestLoadWebMCP_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webmcp.yaml")
	data := []byte("gateway_url: http://gw:9999\ntools:\n  media: false\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWebMCP(path)
	if err != nil {
		t.Fatalf("LoadWebMCP: %v", err)
	}
	if cfg.GatewayURL != "http://gw:9999" {
		t.Errorf("gateway url = %q, want file value", cfg.GatewayURL)
	}
	if cfg.Tools.Media {
		t.Error("media toggle should come from the file")
	}
	// Omitted keys keep their defaults.
	if !cfg.Tools.Items || !cfg.Tools.ConfirmDestructive {
		t.Errorf("omitted toggles should keep defaults: %+v", cfg.Tools)
	}
}

func TestLoadWebMCP_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webmcp.yaml")
	data := []byte("gateway_url: http://gw:9999\ntools:\n  users: true\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("WEBMCP_GATEWAY_URL", "http://env:1234")
	t.Setenv("WEBMCP_TOOLS_USERS", "false")

	cfg, err := LoadWebMCP(path)
	if err != nil {
		t.Fatalf("LoadWebMCP: %v", err)
	}
	if cfg.GatewayURL != "http://env:1234" {
		t.Errorf("gateway url = %q, env should win", cfg.GatewayURL)
	}
	if cfg.Tools.Users {
		t.Error("env toggle should win over the file")
	}
}

func TestLoadWebMCP_MissingFile(t *testing.T) {
	if _, err := LoadWebMCP(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit missing config path should error")
	}
}

func TestLoadWebMCP_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webmcp.yaml")
	if err := os.WriteFile(path, []byte("tools: ["), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadWebMCP(path); err == nil {
		t.Error("malformed YAML should error")
	}
}

func TestEnvOrBool(t *testing.T) {
	t.Setenv("WEBMCP_TEST_BOOL", "")
	if !EnvOrBool("WEBMCP_TEST_BOOL", true) {
		t.Error("unset should fall back")
	}
	t.Setenv("WEBMCP_TEST_BOOL", "false")
	if EnvOrBool("WEBMCP_TEST_BOOL", true) {
		t.Error("explicit false should win")
	}
	t.Setenv("WEBMCP_TEST_BOOL", "not-a-bool")
	if !EnvOrBool("WEBMCP_TEST_BOOL", true) {
		t.Error("unparseable should fall back")
	}
}
