package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/youthweb/youthweb-bridge/internal/audit"
	"github.com/youthweb/youthweb-bridge/internal/auth"
	"github.com/youthweb/youthweb-bridge/internal/cache"
	"github.com/youthweb/youthweb-bridge/internal/config"
	"github.com/youthweb/youthweb-bridge/internal/jsonapi"
	"github.com/youthweb/youthweb-bridge/internal/oauth"
	"github.com/youthweb/youthweb-bridge/internal/observe"
	"github.com/youthweb/youthweb-bridge/internal/request"
	"github.com/youthweb/youthweb-bridge/internal/resource"
	"github.com/youthweb/youthweb-bridge/internal/server"
	"github.com/youthweb/youthweb-bridge/internal/youthweb"
)

func configureServerRoutes(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (http.Handler, error) {
	// wrap a mux such that HTTP telemetry is configured by default
	muxWithoutTelemetry := http.NewServeMux()
	mux := observe.NewMux(muxWithoutTelemetry)

	// The bridge only accepts GET requests, so request bodies are never
	// expected. This is not configurable.
	requestLimitBytes := int64(4 << 10) // 4 KB
	requestLimiter := maxRequestSize(requestLimitBytes)

	auditedRouteMiddleware := alice.New(requestLimiter, audit.Middleware())
	standardRouteMiddleware := alice.New(requestLimiter)

	client, err := newClient(ctx, cfg, hooks)
	if err != nil {
		return nil, err
	}

	users := resource.NewUsers(client, cfg.Client.ResourceOwnerID)
	posts := resource.NewPosts(client)
	stats := resource.NewStats(client)

	// routes reached by browser redirects
	mux.HandlePublic("GET /authorize", auditedRouteMiddleware.Then(handleAuthorize(client)))
	mux.HandlePublic("GET /callback", auditedRouteMiddleware.Then(handleCallback(client)))

	mux.Handle("GET /status", auditedRouteMiddleware.Then(handleStatus(client)))

	mux.Handle("GET /me", auditedRouteMiddleware.Then(handleDocument(func(r *http.Request) (*jsonapi.Document, error) {
		return users.ShowResourceOwner(r.Context())
	})))
	mux.Handle("GET /users/{id}", auditedRouteMiddleware.Then(handleDocument(func(r *http.Request) (*jsonapi.Document, error) {
		return users.Show(r.Context(), r.PathValue("id"))
	})))
	mux.Handle("GET /posts/{id}", auditedRouteMiddleware.Then(handleDocument(func(r *http.Request) (*jsonapi.Document, error) {
		return posts.Show(r.Context(), r.PathValue("id"))
	})))
	mux.Handle("GET /stats/{id}", auditedRouteMiddleware.Then(handleDocument(func(r *http.Request) (*jsonapi.Document, error) {
		return stats.Show(r.Context(), r.PathValue("id"))
	})))
	mux.Handle("GET /api/{path...}", auditedRouteMiddleware.Then(handleDocument(proxyGet(client))))

	// healthchecks are not included in telemetry or auditing
	muxWithoutTelemetry.Handle("GET /healthcheck", standardRouteMiddleware.Then(handleHealthCheck()))

	return mux, nil
}

// newClient assembles the Youthweb client from configuration. The cache is
// closed and the client flushed through hooks.
func newClient(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (*youthweb.Client, error) {
	pool, err := cache.NewFromConfig(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("cache configuration failed: %w", err)
	}
	hooks.AddClose("cache", pool)

	provider := oauth.NewProvider(cfg.Client, http.DefaultClient)

	client, err := youthweb.New(cfg.Client,
		youthweb.WithCache(pool),
		youthweb.WithAuthenticator(auth.New(provider)),
		youthweb.WithTransport(request.NewTransport(http.DefaultClient)),
		youthweb.WithNamespace(cfg.Cache.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("client configuration failed: %w", err)
	}
	hooks.AddContext("youthweb-client", client.Close)

	return client, nil
}

func main() {
	configureLogging()

	logBuildInfo()

	err := launchServer()
	if err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func launchServer() error {
	ctx := context.Background()
	hooks := &server.ShutdownHooks{}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	// configure telemetry, including wrapping default HTTP client
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	hooks.AddContext("telemetry", shutdownTelemetry)

	http.DefaultTransport = observe.HTTPTransport(
		configureHTTPTransport(cfg.Server),
		cfg.Observe,
	)
	http.DefaultClient = &http.Client{
		Transport: http.DefaultTransport,
		Timeout:   time.Duration(cfg.Server.OutgoingHTTPTimeoutSeconds) * time.Second,
	}

	// setup routing and dependencies
	handler, err := configureServerRoutes(ctx, cfg, hooks)
	if err != nil {
		_ = hooks.Execute(ctx)
		return fmt.Errorf("server routing configuration failed: %w", err)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		_ = hooks.Execute(ctx)
		return fmt.Errorf("listen failed: %w", err)
	}

	// start the server
	srv := &http.Server{
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second

	err = server.Serve(ctx, srv, listener, shutdownTimeout, hooks)
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))
	zerolog.LevelFieldMarshalFunc = audit.LevelName

	// default level is Info
	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Info()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.ServerConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
