package xrelay

import (
	"context"
)

// Route labels used purely for observability.
const (
	routeToIntegrations = "integrations"
	routeToSMS          = "sms"
)

// SMSService is the SMS-directional specialization: it harvests messages
// from SMS ports into the SMS-origin queue and delivers integration-origin
// messages out through the SMS ports.
type SMSService struct {
	*Service
}

// NewSMSService wires a delivery service for the SMS direction. incoming is
// the integration-origin queue, outgoing the SMS-origin queue.
func NewSMSService(ports []Port, incoming, outgoing Queue, backoff BackoffConfig, opts ...Option) *SMSService {
	return &SMSService{Service: NewService("sms", ports, incoming, outgoing, backoff, opts...)}
}

// CheckPorts polls the SMS ports and routes new messages to the integrations.
func (s *SMSService) CheckPorts(ctx context.Context) {
	s.Service.CheckPorts(ctx, routeToIntegrations)
}

// IntegrationService is the integration-directional specialization.
type IntegrationService struct {
	*Service
}

// NewIntegrationService wires a delivery service for the integration
// direction. incoming is the SMS-origin queue, outgoing the
// integration-origin queue.
func NewIntegrationService(ports []Port, incoming, outgoing Queue, backoff BackoffConfig, opts ...Option) *IntegrationService {
	return &IntegrationService{Service: NewService("integration", ports, incoming, outgoing, backoff, opts...)}
}

// CheckPorts polls the integration ports and routes new messages to SMS.
func (s *IntegrationService) CheckPorts(ctx context.Context) {
	s.Service.CheckPorts(ctx, routeToSMS)
}
