package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tools toggles which tool groups the MCP server registers and whether
// destructive operations require confirmation.
type Tools struct {
	Items              bool `yaml:"items"`
	ItemSets           bool `yaml:"item_sets"`
	Media              bool `yaml:"media"`
	Users              bool `yaml:"users"`
	Vocabularies       bool `yaml:"vocabularies"`
	ConfirmDestructive bool `yaml:"confirm_destructive"`
}

// WebMCP holds the MCP binary's configuration. Precedence is defaults,
// then the YAML file, then environment variables.
type WebMCP struct {
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	Token      string `yaml:"token"`
	Tools      Tools  `yaml:"tools"`
}

// LoadWebMCP builds the MCP configuration. path may be empty; a non-empty
// path that cannot be read is an error rather than a silent fallback.
func LoadWebMCP(path string) (WebMCP, error) {
	cfg := WebMCP{
		GatewayURL: "http://localhost:8080",
		Tools: Tools{
			Items:              true,
			ItemSets:           true,
			Media:              true,
			Users:              true,
			Vocabularies:       true,
			ConfirmDestructive: true,
		},
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return WebMCP{}, fmt.Errorf("config.LoadWebMCP read %s: %w", path, err)
		}
		// Unmarshal over the defaults so omitted keys keep their values.
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return WebMCP{}, fmt.Errorf("config.LoadWebMCP parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("WEBMCP_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("WEBMCP_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("WEBMCP_TOKEN"); v != "" {
		cfg.Token = v
	}
	cfg.Tools.Items = EnvOrBool("WEBMCP_TOOLS_ITEMS", cfg.Tools.Items)
	cfg.Tools.ItemSets = EnvOrBool("WEBMCP_TOOLS_ITEMSETS", cfg.Tools.ItemSets)
	cfg.Tools.Media = EnvOrBool("WEBMCP_TOOLS_MEDIA", cfg.Tools.Media)
	cfg.Tools.Users = EnvOrBool("WEBMCP_TOOLS_USERS", cfg.Tools.Users)
	cfg.Tools.Vocabularies = EnvOrBool("WEBMCP_TOOLS_VOCABULARIES", cfg.Tools.Vocabularies)
	cfg.Tools.ConfirmDestructive = EnvOrBool("WEBMCP_CONFIRM_DESTRUCTIVE", cfg.Tools.ConfirmDestructive)

	return cfg, nil
}
