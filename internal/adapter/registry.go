package adapter

import (
	"fmt"
	"sync"

	"github.com/klingon-exchange/klingvault/internal/chain"
)

// Registry maps (chain symbol, network) pairs to adapters. Adapters are
// constructed lazily from configured endpoints and cached; requesting an
// unconfigured pair is a hard error, never a silent fallback.
type Registry struct {
	mu        sync.Mutex
	endpoints map[string]string
	adapters  map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		endpoints: make(map[string]string),
		adapters:  make(map[string]Adapter),
	}
}

func registryKey(symbol string, network chain.Network) string {
	return symbol + "/" + string(network)
}

// Configure sets the RPC endpoint for a chain and network. The adapter is
// built on first Get.
func (r *Registry) Configure(symbol string, network chain.Network, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[registryKey(symbol, network)] = endpoint
}

// Register installs a prebuilt adapter, replacing any cached one. Used at
// startup preloading and by tests injecting fakes.
func (r *Registry) Register(symbol string, network chain.Network, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[registryKey(symbol, network)] = a
}

// Get returns the adapter for a chain and network, building it from the
// configured endpoint on first use. Returns ErrNotConfigured when neither an
// adapter nor an endpoint exists for the pair.
func (r *Registry) Get(symbol string, network chain.Network) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(symbol, network)
	if a, ok := r.adapters[key]; ok {
		return a, nil
	}

	endpoint, ok := r.endpoints[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", ErrNotConfigured, symbol, network)
	}

	a, err := r.build(symbol, network, endpoint)
	if err != nil {
		return nil, err
	}
	r.adapters[key] = a
	return a, nil
}

// Configured returns the (symbol, network) pairs with an endpoint or a
// registered adapter.
func (r *Registry) Configured() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var pairs [][2]string
	add := func(key string) {
		if seen[key] {
			return
		}
		seen[key] = true
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				pairs = append(pairs, [2]string{key[:i], key[i+1:]})
				return
			}
		}
	}
	for key := range r.adapters {
		add(key)
	}
	for key := range r.endpoints {
		add(key)
	}
	return pairs
}

func (r *Registry) build(symbol string, network chain.Network, endpoint string) (Adapter, error) {
	params, ok := chain.Get(symbol, network)
	if !ok {
		return nil, fmt.Errorf("%w: unknown chain %s %s", ErrNotConfigured, symbol, network)
	}

	switch params.Type {
	case chain.ChainTypeEVM:
		return NewEVMAdapter(params, endpoint)
	case chain.ChainTypeBitcoin:
		return NewBitcoinAdapter(params, endpoint)
	case chain.ChainTypeSolana:
		return NewSolanaAdapter(params, endpoint)
	case chain.ChainTypeTON:
		return NewTONAdapter(params, endpoint)
	default:
		return nil, fmt.Errorf("%w: unsupported chain type %s", ErrNotConfigured, params.Type)
	}
}
