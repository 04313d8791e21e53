package config

import (
	"os"
	"time"
)

// Gateway holds everything the gateway binary needs. Built once in main
// and handed to constructors by reference; nothing reads the environment
// after startup.
type Gateway struct {
	Addr        string
	MetricsAddr string

	OmekaBaseURL       string
	OmekaKeyIdentity   string
	OmekaKeyCredential string

	APIKeys    string
	SessionTTL time.Duration

	RateRPS   int
	RateBurst int

	AuditDSN string
}

// GatewayFromEnv reads the gateway configuration from the environment.
func GatewayFromEnv() Gateway {
	return Gateway{
		Addr:               EnvOr("WEBMCP_ADDR", ":8080"),
		MetricsAddr:        EnvOr("WEBMCP_METRICS_ADDR", "127.0.0.1:9090"),
		OmekaBaseURL:       os.Getenv("OMEKA_BASE_URL"),
		OmekaKeyIdentity:   os.Getenv("OMEKA_KEY_IDENTITY"),
		OmekaKeyCredential: os.Getenv("OMEKA_KEY_CREDENTIAL"),
		APIKeys:            os.Getenv("WEBMCP_API_KEYS"),
		SessionTTL:         time.Duration(EnvOrInt("WEBMCP_SESSION_TTL_MIN", 60)) * time.Minute,
		RateRPS:            EnvOrInt("WEBMCP_RATE_RPS", 10),
		RateBurst:          EnvOrInt("WEBMCP_RATE_BURST", 20),
		AuditDSN:           os.Getenv("AUDIT_DSN"),
	}
}
