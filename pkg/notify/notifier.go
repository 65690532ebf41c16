package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shawkym/room-upgrader/pkg/config"
)

// Supported notifier types.
const (
	TypeHTTP = "http"
	TypeSNS  = "sns"
	TypeSQS  = "sqs"
)

// Notifier delivers events to one sink.
type Notifier interface {
	Name() string
	Type() string
	Notify(ctx context.Context, evt Event) error
}

// Builder creates a Notifier from a config entry.
type Builder func(ctx context.Context, cfg config.NotifierConfig) (Notifier, error)

// Registry maps notifier types to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry with optional pre-registered builders.
func NewRegistry(builders map[string]Builder) *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// DefaultRegistry wires up the http, sns and sqs notifiers.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Builder{
		TypeHTTP: newHTTPNotifier,
		TypeSNS:  newSNSNotifier,
		TypeSQS:  newSQSNotifier,
	})
}

// Register associates a builder with a notifier type.
func (r *Registry) Register(typ string, builder Builder) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || builder == nil {
		return
	}
	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// Build returns the notifier for cfg.
func (r *Registry) Build(ctx context.Context, cfg config.NotifierConfig) (Notifier, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("notifier %q has no type configured", cfg.Name)
	}

	r.mu.RLock()
	builder := r.builders[typ]
	r.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no notifier registered for type %q", cfg.Type)
	}
	return builder(ctx, cfg)
}

// BuildAll instantiates a notifier for every config entry.
func (r *Registry) BuildAll(ctx context.Context, cfgs []config.NotifierConfig) ([]Notifier, error) {
	var out []Notifier
	for i, cfg := range cfgs {
		n, err := r.Build(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("notify[%d]: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func nameOr(cfg config.NotifierConfig, fallback string) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return fallback
}
