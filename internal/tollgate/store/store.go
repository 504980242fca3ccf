package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// StateKey addresses one slot of module-local state. Tenant is the
// compliance registry the state belongs to; no module may read or write
// under a tenant other than the one it was called for.
type StateKey struct {
	Module common.Address
	Tenant common.Address
	Slot   string
}

// StateWrite sets Key to Value. A nil Value deletes the slot.
type StateWrite struct {
	Key   StateKey
	Value []byte
}

// StateStore is the keyed state shared by every rule module instance.
// Apply is all-or-nothing.
type StateStore interface {
	Get(ctx context.Context, key StateKey) ([]byte, bool, error)
	Apply(ctx context.Context, writes []StateWrite) error
}

// BindingStore records which modules are bound to which registries.
// Modules returns addresses in bind order.
type BindingStore interface {
	Bind(ctx context.Context, registry, module common.Address) error
	Unbind(ctx context.Context, registry, module common.Address) error
	IsBound(ctx context.Context, registry, module common.Address) (bool, error)
	Modules(ctx context.Context, registry common.Address) ([]common.Address, error)
}
