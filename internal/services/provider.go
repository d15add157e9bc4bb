package services

import (
	"context"
)

// Provider is an external backing service the academy depends on
type Provider interface {
	// Type returns the service type name
	Type() string

	// HealthCheck checks if the service is available
	HealthCheck(ctx context.Context) error

	// Close releases connections held by the provider
	Close() error
}

// BaseProvider provides common functionality for providers
type BaseProvider struct {
	serviceType string
}

// Type returns the service type
func (p *BaseProvider) Type() string {
	return p.serviceType
}

// CheckFunc adapts a health probe (a repository ping) into a Provider
type CheckFunc struct {
	BaseProvider
	check func(ctx context.Context) error
}

// NewCheckFunc wraps check as a provider of the given type
func NewCheckFunc(serviceType string, check func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{BaseProvider: BaseProvider{serviceType: serviceType}, check: check}
}

// HealthCheck runs the wrapped probe
func (c *CheckFunc) HealthCheck(ctx context.Context) error {
	return c.check(ctx)
}

// Close is a no-op; the probed resource is owned elsewhere
func (c *CheckFunc) Close() error {
	return nil
}
