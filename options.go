package logisim

import (
	"log/slog"
	"time"
)

// Option configures a Simulator during creation.
// Use functional options to customize Simulator behavior.
//
// Example:
//
//	// Default backend, identity rule
//	sim, err := logisim.New(nodes)
//
//	// CPU backend with four workers and a netlist rule
//	sim, err := logisim.New(nodes,
//	    logisim.WithBackend("software"),
//	    logisim.WithWorkers(4),
//	    logisim.WithRule(circuit.Rule()))
type Option func(*options)

// options holds optional configuration for Simulator creation.
type options struct {
	backend     string
	instance    Backend
	rule        Rule
	workers     int
	tickTimeout time.Duration
	logger      *slog.Logger
}

// defaultOptions returns the default simulator options.
func defaultOptions() options {
	return options{
		backend:     "", // DefaultBackend()
		rule:        IdentityRule{},
		workers:     0, // GOMAXPROCS
		tickTimeout: 5 * time.Second,
	}
}

// WithBackend selects a registered backend by name. If the named backend
// cannot be created, or cannot run the rule, the simulator falls back to
// the software backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithBackendInstance uses an already initialized backend. The simulator
// takes ownership and closes it on Close.
//
// Example:
//
//	b, _ := gpu.NewSharedBackend(provider)
//	sim, err := logisim.New(nodes, logisim.WithBackendInstance(b))
func WithBackendInstance(b Backend) Option {
	return func(o *options) {
		o.instance = b
	}
}

// WithRule sets the transition rule. The default is IdentityRule.
func WithRule(r Rule) Option {
	return func(o *options) {
		if r != nil {
			o.rule = r
		}
	}
}

// WithWorkers sets the worker count of the software backend.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithTickTimeout bounds how long a tick may wait for the backend. A tick
// that exceeds it fails with ErrTickTimeout and does not flip.
// Zero disables the bound.
func WithTickTimeout(d time.Duration) Option {
	return func(o *options) {
		o.tickTimeout = d
	}
}

// WithLogger installs l as the package logger before the backend is
// created. It is equivalent to calling SetLogger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
