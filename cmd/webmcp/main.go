// Webmcp is the MCP stdio server for Omeka S. It registers the tool
// catalog and forwards every call to the gateway's dispatch API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/catalog"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/config"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/sdk/client"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()
	// Stdout carries the MCP stream, so logs go to stderr.
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadWebMCP(config.EnvOr("WEBMCP_CONFIG", ""))
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if cfg.APIKey == "" && cfg.Token == "" {
		log.Error("no credentials: set WEBMCP_API_KEY or WEBMCP_TOKEN")
		os.Exit(1)
	}

	gw := client.New(cfg.GatewayURL, cfg.APIKey)
	if cfg.Token != "" {
		gw.SetToken(cfg.Token)
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "omeka-s-webmcp", Version: version}, nil)
	catalog.New(gw, cfg.Tools, log).Register(server)

	log.Info("webmcp serving on stdio", "gateway", cfg.GatewayURL, "version", version)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Error("mcp server exited", "error", err)
		os.Exit(1)
	}
	log.Info("webmcp stopped")
}
