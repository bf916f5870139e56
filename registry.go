package xrelay

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/trickstertwo/xlog"
)

// AdapterKind partitions port adapters by the side of the relay they serve.
type AdapterKind string

const (
	KindSMS         AdapterKind = "sms"
	KindIntegration AdapterKind = "integration"
)

// Registry maps (kind, adapter name) to a PortFactory. It is an explicit
// object built once at startup and passed to the Gateway; there is no
// process-wide registry. Registration is closed and small by design, so
// lookups are plain map reads behind a mutex.
type Registry struct {
	mu        sync.RWMutex
	factories map[AdapterKind]map[string]PortFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[AdapterKind]map[string]PortFactory{
			KindSMS:         {},
			KindIntegration: {},
		},
	}
}

// Register binds a factory to (kind, name). Names are case-insensitive.
func (r *Registry) Register(kind AdapterKind, name string, factory PortFactory) error {
	if name == "" {
		return errors.New("adapter name must not be empty")
	}
	if factory == nil {
		return errors.New("adapter factory must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.factories[kind]
	if !ok {
		return ErrUnknownAdapter{Kind: kind, Name: name}
	}
	byName[strings.ToLower(name)] = factory
	return nil
}

// New constructs a port by (kind, name) with the given config.
func (r *Registry) New(kind AdapterKind, name string, cfg map[string]any) (Port, error) {
	r.mu.RLock()
	f, ok := r.factories[kind][strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAdapter{Kind: kind, Name: name}
	}
	return f(cfg)
}

// Names lists registered adapter names for a kind, for startup logging.
func (r *Registry) Names(kind AdapterKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories[kind]))
	for n := range r.factories[kind] {
		names = append(names, n)
	}
	return names
}

// CreatePorts builds and initializes every enabled port described by
// configs (adapter name -> list of config blobs). A failing adapter is
// logged and skipped; it never blocks the remaining adapters.
func (r *Registry) CreatePorts(ctx context.Context, kind AdapterKind, configs map[string][]map[string]any, logger *xlog.Logger) []Port {
	var ports []Port
	for name, blobs := range configs {
		for _, cfg := range blobs {
			if enabled, ok := cfg["enabled"].(bool); ok && !enabled {
				continue
			}
			port, err := r.New(kind, name, cfg)
			if err != nil {
				logger.Error().Err(err).
					Str("kind", string(kind)).
					Str("adapter", name).
					Msg("failed to create adapter")
				continue
			}
			if err := port.Initialize(ctx); err != nil {
				logger.Error().Err(err).
					Str("kind", string(kind)).
					Str("adapter", name).
					Str("port", port.Name()).
					Msg("failed to initialize adapter")
				continue
			}
			logger.Info().
				Str("kind", string(kind)).
				Str("adapter", name).
				Str("port", port.Name()).
				Msg("adapter initialized")
			ports = append(ports, port)
		}
	}
	return ports
}
