package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jdziat/simple-job-pool/pkg/logger"
)

const (
	// DefaultListLimit is used when GET /jobs has no limit parameter.
	DefaultListLimit = 50
	// MaxListLimit caps the limit parameter of GET /jobs.
	MaxListLimit = 500

	defaultHealthTimeout = 5 * time.Second
	maxBodyBytes         = 1 << 20
)

// CheckFunc reports the health of one dependency.
type CheckFunc func(ctx context.Context) error

// Option configures the API handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	logger        *slog.Logger
	gatherer      prometheus.Gatherer
	checks        map[string]CheckFunc
	healthTimeout time.Duration
	middleware    func(http.Handler) http.Handler
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		logger:        logger.NewNope(),
		checks:        make(map[string]CheckFunc),
		healthTimeout: defaultHealthTimeout,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// WithLogger sets the logger used for request logs.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *config) {
		if l != nil {
			c.logger = l
		}
	})
}

// WithMetrics serves GET /metrics from g.
func WithMetrics(g prometheus.Gatherer) Option {
	return optionFunc(func(c *config) {
		c.gatherer = g
	})
}

// WithCheck adds a named check to GET /healthz.
func WithCheck(name string, fn CheckFunc) Option {
	return optionFunc(func(c *config) {
		if fn != nil {
			c.checks[name] = fn
		}
	})
}

// WithHealthTimeout bounds how long all health checks may take together.
func WithHealthTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		if d > 0 {
			c.healthTimeout = d
		}
	})
}

// WithMiddleware wraps the handler with middleware (auth, CORS, etc.).
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		c.middleware = mw
	})
}
