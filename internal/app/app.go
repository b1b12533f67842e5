// Package app wires all Answercore subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithConfigLoader, WithKM, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/AmityCo/answercore/internal/answer"
	"github.com/AmityCo/answercore/internal/audiocache"
	"github.com/AmityCo/answercore/internal/config"
	"github.com/AmityCo/answercore/internal/fetchcache"
	"github.com/AmityCo/answercore/internal/health"
	"github.com/AmityCo/answercore/internal/httpapi"
	"github.com/AmityCo/answercore/internal/observe"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/internal/quickreply"
	"github.com/AmityCo/answercore/internal/tts"
	oaembed "github.com/AmityCo/answercore/pkg/provider/embeddings/openai"
	"github.com/AmityCo/answercore/pkg/provider/km"
	kmamity "github.com/AmityCo/answercore/pkg/provider/km/amity"
	kmpostgres "github.com/AmityCo/answercore/pkg/provider/km/postgres"
	ttsvendor "github.com/AmityCo/answercore/pkg/provider/tts"
	"github.com/AmityCo/answercore/pkg/provider/tts/azure"
)

// App owns all subsystem lifetimes behind the HTTP surface.
type App struct {
	cfg *config.Config

	// Injectable collaborators. Nil fields are built from config in New.
	loader orgconfig.Loader
	km     km.Provider
	vendor ttsvendor.Provider
	cache  audiocache.Store
	quick  answer.QuickReplier

	srv *http.Server

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithConfigLoader injects an org-config loader instead of the DynamoDB one.
func WithConfigLoader(l orgconfig.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithKM injects a retrieval backend instead of creating one from config.
func WithKM(p km.Provider) Option {
	return func(a *App) { a.km = p }
}

// WithTTSVendor injects a synthesis backend instead of the Azure client.
func WithTTSVendor(p ttsvendor.Provider) Option {
	return func(a *App) { a.vendor = p }
}

// WithAudioCache injects an audio cache store instead of creating one from
// config.
func WithAudioCache(s audiocache.Store) Option {
	return func(a *App) { a.cache = s }
}

// WithQuickReplier injects a quick-reply lookup instead of the hosted one.
func WithQuickReplier(q answer.QuickReplier) Option {
	return func(a *App) { a.quick = q }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	var checkers []health.Checker
	fetcher := fetchcache.New()

	if err := a.initOrgConfig(ctx); err != nil {
		return nil, fmt.Errorf("app: init org config: %w", err)
	}
	checkers = append(checkers, health.Checker{Name: "org_config", Check: a.checkOrgConfig})

	cacheChecker, err := a.initAudioCache()
	if err != nil {
		return nil, fmt.Errorf("app: init audio cache: %w", err)
	}
	if cacheChecker != nil {
		checkers = append(checkers, *cacheChecker)
	}

	kmChecker, err := a.initKM(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init knowledge retrieval: %w", err)
	}
	if kmChecker != nil {
		checkers = append(checkers, *kmChecker)
	}

	if a.vendor == nil {
		a.vendor = azure.New()
	}
	if a.quick == nil && cfg.QuickReply.BaseURL != "" {
		var qopts []quickreply.Option
		if cfg.QuickReply.Threshold > 0 {
			qopts = append(qopts, quickreply.WithThreshold(cfg.QuickReply.Threshold))
		}
		a.quick = quickreply.New(fetcher, cfg.QuickReply.BaseURL, qopts...)
	}

	api := httpapi.NewServer(httpapi.Deps{
		Configs:       a.loader,
		Fetcher:       fetcher,
		Renderer:      tts.NewRenderer(a.cache, a.vendor),
		KM:            a.km,
		Quick:         a.quick,
		StreamTimeout: cfg.Server.StreamTimeout,
	})

	mux := http.NewServeMux()
	api.Register(mux)
	health.New(checkers...).Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	a.srv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// initOrgConfig builds the DynamoDB loader behind the process-wide TTL cache
// unless one was injected.
func (a *App) initOrgConfig(ctx context.Context) error {
	if a.loader != nil {
		return nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if a.cfg.OrgConfig.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(a.cfg.OrgConfig.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	dyn, err := orgconfig.NewDynamo(dynamodb.NewFromConfig(awsCfg), a.cfg.OrgConfig.Table)
	if err != nil {
		return err
	}
	a.loader = orgconfig.NewCache(dyn, a.cfg.OrgConfig.CacheTTL)
	return nil
}

// checkOrgConfig probes the configuration table with a sentinel key. Not
// found means the table answered, which is healthy.
func (a *App) checkOrgConfig(ctx context.Context) error {
	_, err := a.loader.Load(ctx, "healthcheck", "healthcheck")
	if err != nil && !errors.Is(err, orgconfig.ErrNotFound) {
		return err
	}
	return nil
}

// initAudioCache selects the redis or in-memory backend. The returned checker
// is nil for the in-memory cache, which has nothing to probe.
func (a *App) initAudioCache() (*health.Checker, error) {
	if a.cache != nil {
		return nil, nil
	}
	if a.cfg.AudioCache.RedisAddr == "" {
		a.cache = audiocache.NewMemory(a.cfg.AudioCache.MaxEntries)
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.AudioCache.RedisAddr,
		Password: a.cfg.AudioCache.RedisPassword(),
	})
	a.cache = audiocache.NewRedis(client)
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })

	return &health.Checker{
		Name:  "redis",
		Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, nil
}

// initKM builds the retrieval backend: the self-hosted pgvector store when a
// DSN is configured, the hosted search API when a URL is, otherwise none
// (retrieval degrades to an empty document set per request).
func (a *App) initKM(ctx context.Context) (*health.Checker, error) {
	if a.km != nil {
		return nil, nil
	}

	if dsn := a.cfg.Knowledge.PostgresDSN; dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect knowledge store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})

		embedder, err := oaembed.New(a.cfg.Knowledge.OpenAIKey(), a.cfg.Knowledge.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("create query embedder: %w", err)
		}
		a.km = kmpostgres.New(pool, embedder)

		return &health.Checker{
			Name:  "knowledge_store",
			Check: pool.Ping,
		}, nil
	}

	if a.cfg.KM.BaseURL != "" {
		client, err := kmamity.New(a.cfg.KM.BaseURL, a.cfg.KM.Token())
		if err != nil {
			return nil, err
		}
		a.km = client
	}
	return nil, nil
}

// Handler returns the root HTTP handler. Used by tests to drive the server
// without a listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops the HTTP server and closes every subsystem in order. Safe to
// call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		var errs []error
		if e := a.srv.Shutdown(ctx); e != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", e))
		}
		for _, closer := range a.closers {
			if e := closer(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
