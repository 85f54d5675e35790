package ioc

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-ioc/config"
	"github.com/toutaio/toutago-ioc/feed"
)

// Option is a function that configures a Resolver.
type Option func(*Resolver) error

// WithSource adds a module source. Sources are enumerated in the order they
// are added.
func WithSource(src feed.Source) Option {
	return func(r *Resolver) error {
		if src == nil {
			return fmt.Errorf("source cannot be nil")
		}
		r.sources = append(r.sources, src)
		return nil
	}
}

// WithModules adds already built modules as a source.
func WithModules(mods ...feed.Module) Option {
	return WithSource(feed.Modules(mods...))
}

// WithFilter keeps only modules whose name starts with one of include (every
// module, when include is empty) and with none of exclude.
func WithFilter(include, exclude []string) Option {
	return func(r *Resolver) error {
		r.include = include
		r.exclude = exclude
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithErrorHandler sets a callback invoked once per discovery-time failure.
// Failures are logged at warn level either way.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Resolver) error {
		r.onError = fn
		return nil
	}
}

// WithMetrics registers the resolver's Prometheus collectors with reg.
// Collectors carry a constant "resolver" label holding the resolver ID.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Resolver) error {
		if reg == nil {
			return fmt.Errorf("metrics registerer cannot be nil")
		}
		r.metricsRegisterer = reg
		return nil
	}
}

// WithMetricsNamespace overrides the metrics namespace, "ioc" by default.
func WithMetricsNamespace(namespace string) Option {
	return func(r *Resolver) error {
		r.metricsNamespace = namespace
		return nil
	}
}

// WithOverrides pre-binds instances once discovery has run, as if passed to
// RegisterOverride. Failures go to the error handler.
func WithOverrides(instances ...any) Option {
	return func(r *Resolver) error {
		r.overrides = append(r.overrides, instances...)
		return nil
	}
}

// WithConfig applies loaded settings: the module filter, a logger built
// from cfg.Log and, when enabled, metrics on the default Prometheus
// registerer.
func WithConfig(cfg *config.Config) Option {
	return func(r *Resolver) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		r.include = cfg.Include
		r.exclude = cfg.Exclude

		logger, err := cfg.Log.Build()
		if err != nil {
			return err
		}
		r.logger = logger

		if cfg.Metrics.Enabled {
			if r.metricsRegisterer == nil {
				r.metricsRegisterer = prometheus.DefaultRegisterer
			}
			if cfg.Metrics.Namespace != "" {
				r.metricsNamespace = cfg.Metrics.Namespace
			}
		}
		return nil
	}
}
