package sigbridge

import (
	"sync"

	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge/config"
)

// SubscribeFunc opens a subscription on the data transport.
type SubscribeFunc func(name string, args ...any) Handle

// ErrorHandler receives errors of reactive data and subscriptions, by key.
type ErrorHandler func(key string, err error)

type Options struct {
	// Subscribe opens subscriptions. Required by subscription declarations.
	Subscribe SubscribeFunc
	// Freeze copies results before storing them, or freezes them when they
	// know how to.
	Freeze bool
	// Server marks every scope as server-rendered.
	Server bool
	// SSR lets server-rendered scopes run their declarations.
	SSR bool

	Logger  *zap.Logger
	OnError ErrorHandler
}

type Option func(*Options)

var (
	installed   = Options{SSR: true}
	installedMu sync.RWMutex
)

// Install sets the defaults every scope starts from.
func Install(opts ...Option) {
	installedMu.Lock()
	defer installedMu.Unlock()

	for _, opt := range opts {
		opt(&installed)
	}
}

// Installed returns the defaults set by Install.
func Installed() Options {
	installedMu.RLock()
	defer installedMu.RUnlock()

	return installed
}

// ResetInstall restores the defaults.
func ResetInstall() {
	installedMu.Lock()
	defer installedMu.Unlock()

	installed = Options{SSR: true}
}

func WithSubscribe(fn SubscribeFunc) Option {
	return func(o *Options) { o.Subscribe = fn }
}

func WithFreeze(freeze bool) Option {
	return func(o *Options) { o.Freeze = freeze }
}

func WithServer(server bool) Option {
	return func(o *Options) { o.Server = server }
}

func WithSSR(ssr bool) Option {
	return func(o *Options) { o.SSR = ssr }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithErrorHandler(fn ErrorHandler) Option {
	return func(o *Options) { o.OnError = fn }
}

// WithConfig applies the flags of a loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *Options) {
		if cfg == nil {
			return
		}

		o.Freeze = cfg.FreezeResults
		o.Server = cfg.Server
		o.SSR = cfg.SSR
	}
}

func resolveOptions(opts []Option) Options {
	o := Installed()
	for _, opt := range opts {
		opt(&o)
	}

	if o.Logger == nil {
		o.Logger = Logger()
	}
	return o
}
