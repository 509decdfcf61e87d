package adapters

import (
	"github.com/smallbiznis/registrar/internal/payment/domain"
)

type Registry struct {
	adapters map[domain.Gateway]domain.Adapter
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[domain.Gateway]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Gateway()] = adapter
	}
	return registry
}

func (r *Registry) Exists(gateway domain.Gateway) bool {
	if r == nil {
		return false
	}
	_, ok := r.adapters[gateway]
	return ok
}

func (r *Registry) Adapter(gateway domain.Gateway) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrInvalidGateway
	}
	adapter, ok := r.adapters[gateway]
	if !ok {
		return nil, domain.ErrInvalidGateway
	}
	return adapter, nil
}
