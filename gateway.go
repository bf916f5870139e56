package xrelay

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xlog"
)

// Gateway coordinates the two directional delivery services and owns the
// adapter lifecycle. It drives the poll loop: each cycle checks every port
// for inbound messages, then processes one message per queue.
type Gateway struct {
	cfg      *GatewayConfig
	registry *Registry
	logger   *xlog.Logger
	clock    Clock

	smsQueue         Queue
	integrationQueue Queue

	smsPorts         []Port
	integrationPorts []Port

	sms         *SMSService
	integration *IntegrationService

	observers []Observer

	closed    atomic.Bool
	closeOnce sync.Once
}

// GatewayOption configures a Gateway at construction.
type GatewayOption func(*Gateway)

// WithGatewayLogger injects a custom xlog logger.
func WithGatewayLogger(l *xlog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithGatewayClock injects a custom clock shared by both services.
func WithGatewayClock(c Clock) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithGatewayObserver attaches observers to both delivery services.
func WithGatewayObserver(obs ...Observer) GatewayOption {
	return func(g *Gateway) {
		for _, o := range obs {
			if o != nil {
				g.observers = append(g.observers, o)
			}
		}
	}
}

// NewGateway builds a gateway from validated config, an adapter registry and
// the two directional queues. Ports are created during Initialize.
func NewGateway(cfg *GatewayConfig, registry *Registry, smsQueue, integrationQueue Queue, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg:              cfg,
		registry:         registry,
		smsQueue:         smsQueue,
		integrationQueue: integrationQueue,
	}
	for _, o := range opts {
		if o != nil {
			o(g)
		}
	}
	if g.logger == nil {
		g.logger = xlog.Default()
	}
	if g.clock == nil {
		g.clock = defaultClock()
	}
	g.logger = g.logger.With(xlog.Str("gateway", cfg.Name))
	return g
}

// SMS returns the SMS-directional service (available after Initialize).
func (g *Gateway) SMS() *SMSService { return g.sms }

// Integration returns the integration-directional service.
func (g *Gateway) Integration() *IntegrationService { return g.integration }

// Initialize creates and initializes every configured adapter and wires the
// two delivery services. Per-adapter failures are logged and skipped.
func (g *Gateway) Initialize(ctx context.Context) error {
	if g.closed.Load() {
		return ErrGatewayClosed
	}

	g.logger.Info().
		Str("sms_adapters", strings.Join(g.registry.Names(KindSMS), ",")).
		Str("integration_adapters", strings.Join(g.registry.Names(KindIntegration), ",")).
		Msg("starting gateway")

	g.smsPorts = g.registry.CreatePorts(ctx, KindSMS, g.cfg.SMS, g.logger)
	g.integrationPorts = g.registry.CreatePorts(ctx, KindIntegration, g.cfg.Integration, g.logger)

	if len(g.smsPorts) == 0 && len(g.integrationPorts) == 0 {
		g.logger.Warn().Msg("no adapters initialized, check configuration")
	}

	common := []Option{
		WithLogger(g.logger),
		WithClock(g.clock),
		WithObserver(g.observers...),
	}

	// SMS side delivers integration-origin messages out through SMS ports
	// and harvests SMS-origin messages into the SMS queue; the integration
	// side mirrors it.
	g.sms = NewSMSService(g.smsPorts, g.integrationQueue, g.smsQueue, g.cfg.Runtime.Backoff, common...)
	g.integration = NewIntegrationService(g.integrationPorts, g.smsQueue, g.integrationQueue, g.cfg.Runtime.Backoff, common...)

	g.logger.Info().
		Int("sms_ports", len(g.smsPorts)).
		Int("integration_ports", len(g.integrationPorts)).
		Dur("poll_delay", g.cfg.Runtime.PollDelay).
		Msg("gateway initialized")
	return nil
}

// CheckServices polls every port on both services for new messages.
func (g *Gateway) CheckServices(ctx context.Context) {
	g.sms.CheckPorts(ctx)
	g.integration.CheckPorts(ctx)
}

// ProcessQueues advances both delivery queues by one message each.
func (g *Gateway) ProcessQueues(ctx context.Context) {
	g.sms.ProcessQueue(ctx)
	g.integration.ProcessQueue(ctx)
}

// Run initializes the gateway and drives the poll loop until ctx is
// cancelled, then shuts down every port.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.Initialize(ctx); err != nil {
		return err
	}
	defer g.Shutdown(context.Background())

	ticker := time.NewTicker(g.cfg.Runtime.PollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info().Msg("shutdown signal received")
			return nil
		case <-ticker.C:
			g.CheckServices(ctx)
			g.ProcessQueues(ctx)
		}
	}
}

// Shutdown closes every port, isolating per-port failures. Idempotent.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		g.logger.Info().Msg("initiating shutdown")

		for _, port := range append(append([]Port{}, g.smsPorts...), g.integrationPorts...) {
			if err := port.Shutdown(ctx); err != nil {
				g.logger.Error().Err(err).
					Str("port", port.Name()).
					Msg("error shutting down port")
				continue
			}
			g.logger.Info().
				Str("port", port.Name()).
				Msg("port shut down")
		}

		g.logger.Info().Msg("shutdown complete")
	})
}
