package gateway

import (
	"sync"

	"payment-orchestrator/internal/models"
)

// Registry maps payment methods to the adapter that serves them. Adapter
// bindings are loaded at startup; enablement is refreshed from the stored
// payment configuration before every charge attempt.
type Registry struct {
	mu       sync.RWMutex
	byMethod map[models.PaymentMethod]PaymentGateway
	enabled  map[models.PaymentMethod]bool
}

// NewRegistry creates an empty gateway registry.
func NewRegistry() *Registry {
	return &Registry{
		byMethod: make(map[models.PaymentMethod]PaymentGateway),
		enabled:  make(map[models.PaymentMethod]bool),
	}
}

// Register binds a method to an adapter and marks it enabled or disabled.
func (r *Registry) Register(method models.PaymentMethod, gw PaymentGateway, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byMethod[method] = gw
	r.enabled[method] = enabled
}

// SetEnabled flips a method's availability without touching its adapter.
func (r *Registry) SetEnabled(method models.PaymentMethod, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled[method] = enabled
}

// Get returns the adapter for a method. A method with no adapter is
// unsupported; a registered but disabled method is rejected as disabled.
func (r *Registry) Get(method models.PaymentMethod) (PaymentGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gw, ok := r.byMethod[method]
	if !ok {
		return nil, models.ErrMethodNotSupported
	}
	if !r.enabled[method] {
		return nil, models.ErrMethodDisabled
	}
	return gw, nil
}

// IsEnabled reports whether a method is registered and enabled.
func (r *Registry) IsEnabled(method models.PaymentMethod) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[method] && r.byMethod[method] != nil
}

// Primary returns the adapter for the given provider regardless of method
// routing. Bill settlement always goes through the primary provider.
func (r *Registry) Primary(provider models.GatewayProvider) (PaymentGateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, gw := range r.byMethod {
		if gw.Provider() == provider {
			return gw, true
		}
	}
	return nil, false
}
