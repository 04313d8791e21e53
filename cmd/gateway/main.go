// Gateway is the HTTP entrypoint for AI agent operation envelopes. It
// gates each dispatch behind an anti-forgery token, validates the
// envelope, and hands it to the dispatcher for backend execution.
package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/audit"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/auth"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/config"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/csrf"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/dispatch"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/omeka"
	wmotel "github.com/ateeducacion/omeka-s-WebMCP/pkg/otel"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const maxRateLimiters = 10_000

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.GatewayFromEnv()

	// ── OpenTelemetry ────────────────────────────────────────────────────
	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelShutdown, err := wmotel.Setup(ctx, wmotel.Config{
		ServiceName:    config.EnvOr("OTEL_SERVICE_NAME", "webmcp-gateway"),
		OTLPEndpoint:   otelEndpoint,
		MetricsEnabled: true,
		TracingEnabled: otelEndpoint != "",
	})
	if err != nil {
		log.Error("otel setup failed", "error", err)
	} else {
		defer otelShutdown(context.Background()) //nolint:errcheck // best-effort shutdown
	}

	// ── Backend client ───────────────────────────────────────────────────
	if cfg.OmekaBaseURL == "" {
		log.Error("OMEKA_BASE_URL is required")
		os.Exit(1)
	}
	omekaClient, err := omeka.NewClient(omeka.Config{
		BaseURL:       cfg.OmekaBaseURL,
		KeyIdentity:   cfg.OmekaKeyIdentity,
		KeyCredential: cfg.OmekaKeyCredential,
	}, log)
	if err != nil {
		log.Error("omeka client init failed", "error", err)
		os.Exit(1)
	}
	defer omekaClient.Close()

	// ── Audit (optional) ─────────────────────────────────────────────────
	var auditStore *audit.Store
	var recorder *audit.Recorder
	if cfg.AuditDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.AuditDSN)
		if err != nil {
			log.Error("audit postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		auditStore = audit.NewStore(pool)
		if err := auditStore.Migrate(ctx); err != nil {
			log.Error("audit migrate failed", "error", err)
			os.Exit(1)
		}
		recorder = audit.NewRecorder(auditStore, log)
	}

	// ── Dependencies ─────────────────────────────────────────────────────
	var dispatchRecorder dispatch.Recorder
	if recorder != nil {
		dispatchRecorder = recorder
	}
	dispatcher := dispatch.New(omekaClient, dispatchRecorder, log)
	tokens := csrf.NewMemoryStore(cfg.SessionTTL)
	keyStore := auth.NewKeyStore(cfg.APIKeys)

	gw := &Gateway{
		log:          log,
		dispatcher:   dispatcher,
		tokens:       tokens,
		sessionTTL:   cfg.SessionTTL,
		rateLimiters: make(map[string]*rate.Limiter),
		rateRPS:      cfg.RateRPS,
		rateBurst:    cfg.RateBurst,
	}
	if recorder != nil {
		gw.recorder = recorder
	}

	// ── Router ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Logger)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		types.Fail(types.ErrMethodNotAllowed()).WriteJSON(w)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		types.Fail(types.ErrNotFound("no such endpoint")).WriteJSON(w)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := omekaClient.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
			return
		}
		if auditStore != nil {
			if err := auditStore.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("NOT READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/v1/dispatch", gw.HandleDispatch)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.APIKeyAuth(keyStore))
		pr.Post("/v1/session", gw.HandleSession)
	})

	// ── Metrics (internal) ───────────────────────────────────────────────
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	// ── Server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := metricsSrv.Shutdown(shutCtx); err != nil {
		log.Error("metrics server shutdown error", "error", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Gateway handler
// ──────────────────────────────────────────────────────────────────────────────

type Gateway struct {
	log        *slog.Logger
	dispatcher gatewayDispatcher
	tokens     csrf.TokenStore
	recorder   gatewayRecorder
	sessionTTL time.Duration

	rateLimiters map[string]*rate.Limiter
	rlOrder      []string
	rlMu         sync.Mutex
	rateRPS      int
	rateBurst    int
}

type gatewayDispatcher interface {
	Dispatch(context.Context, *types.Envelope) *types.Result
}

type gatewayRecorder interface {
	Record(context.Context, audit.Event)
}

// HandleDispatch is POST /v1/dispatch. Checks run in a fixed order: the
// router answers 405 for other methods, then the anti-forgery token, then
// the rate limit, then envelope validation. Only a fully validated
// envelope reaches the backend.
func (gw *Gateway) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.Header.Get("X-Csrf-Token")
	if !gw.tokens.Validate(token) {
		types.Fail(types.ErrForbidden(types.MsgInvalidToken)).WriteJSON(w)
		return
	}

	if !gw.allowRate(token) {
		w.Header().Set("Retry-After", "1")
		types.Fail(types.ErrRateLimited()).WriteJSON(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, types.MaxEnvelopeBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		types.Fail(types.ErrBadRequest("request body unreadable or too large")).WriteJSON(w)
		return
	}
	env, apiErr := types.ParseEnvelope(body)
	if apiErr != nil {
		types.Fail(apiErr).WriteJSON(w)
		return
	}

	gw.dispatcher.Dispatch(ctx, env).WriteJSON(w)
}

// HandleSession is POST /v1/session (API-key authed). It mints the
// anti-forgery token a host needs before it can dispatch.
func (gw *Gateway) HandleSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := auth.PrincipalFromContext(ctx)

	token, err := gw.tokens.Issue()
	if err != nil {
		gw.log.ErrorContext(ctx, "token issue failed", "error", err)
		types.Fail(types.ErrInternal("failed to issue session token")).WriteJSON(w)
		return
	}

	if gw.recorder != nil {
		gw.recorder.Record(ctx, audit.Event{
			Principal: principal,
			Action:    audit.ActionSessionIssue,
			Outcome:   "success",
			Status:    http.StatusOK,
		})
	}
	gw.log.InfoContext(ctx, "session issued", "principal", principal)

	types.OK(map[string]any{
		"token":     token,
		"expiresAt": time.Now().UTC().Add(gw.sessionTTL),
	}).WriteJSON(w)
}

// ──────────────────────────────────────────────────────────────────────────────
// Rate limiting (bounded map with eviction)
// ──────────────────────────────────────────────────────────────────────────────

func (gw *Gateway) allowRate(token string) bool {
	gw.rlMu.Lock()
	defer gw.rlMu.Unlock()

	lim, ok := gw.rateLimiters[token]
	if ok {
		// Move to end of LRU order.
		for i, k := range gw.rlOrder {
			if k == token {
				gw.rlOrder = append(gw.rlOrder[:i], gw.rlOrder[i+1:]...)
				break
			}
		}
		gw.rlOrder = append(gw.rlOrder, token)
		return lim.Allow()
	}

	if len(gw.rateLimiters) >= maxRateLimiters {
		oldest := gw.rlOrder[0]
		gw.rlOrder = gw.rlOrder[1:]
		delete(gw.rateLimiters, oldest)
	}

	lim = rate.NewLimiter(rate.Limit(gw.rateRPS), gw.rateBurst)
	gw.rateLimiters[token] = lim
	gw.rlOrder = append(gw.rlOrder, token)
	return lim.Allow()
}
