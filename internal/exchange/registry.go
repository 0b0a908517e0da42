package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a static lookup of gateway implementations keyed by exchange
// name. Gateways are registered once at startup; resolution by arbitrary
// string paths is deliberately not supported.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[string]Gateway)}
}

// Register adds a gateway under its own name. Registering the same name
// twice replaces the previous gateway.
func (r *Registry) Register(gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[strings.ToLower(gw.Name())] = gw
}

// Resolve returns the gateway for the given exchange name.
func (r *Registry) Resolve(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
	return gw, nil
}

// Names lists the registered exchange names in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
