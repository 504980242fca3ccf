package compliance

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Catalog holds the module instances known to the engine. Registries only
// bind modules found here.
type Catalog struct {
	mu      sync.RWMutex
	modules map[common.Address]Module
}

func NewCatalog(modules ...Module) *Catalog {
	c := &Catalog{modules: make(map[common.Address]Module, len(modules))}
	for _, m := range modules {
		c.modules[m.Address()] = m
	}
	return c
}

func (c *Catalog) Register(m Module) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.modules[m.Address()]; ok && existing != m {
		return fmt.Errorf("module address %s already registered", m.Address())
	}
	c.modules[m.Address()] = m
	return nil
}

func (c *Catalog) Get(addr common.Address) (Module, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.modules[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, addr)
	}
	return m, nil
}

func (c *Catalog) ByKind(kind Kind) []Module {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Module
	for _, m := range c.modules {
		if m.Kind() == kind {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Address().Bytes(), out[j].Address().Bytes()) < 0 })
	return out
}
