package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		items[g.Identifier()] = g
	}
	return &Registry{gateways: items}
}

func (r *Registry) Get(identifier string) (Gateway, error) {
	gateway, ok := r.gateways[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return gateway, nil
}

func (r *Registry) Supports(identifier string) bool {
	_, ok := r.gateways[strings.ToLower(strings.TrimSpace(identifier))]
	return ok
}
