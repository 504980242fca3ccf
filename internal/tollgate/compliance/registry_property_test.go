package compliance_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tollgate-labs/tollgate/server/internal/authz"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/compliance"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store/memory"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/types"
)

func addrFrom(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(n))
}

// Property: a registry with no bound modules allows any operation.
func TestRegistryProperty_EmptyRegistryAllowsAll(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	az, err := authz.New(authz.Config{})
	if err != nil {
		t.Fatalf("authz: %v", err)
	}

	properties.Property("evaluate on an empty registry is always true", prop.ForAll(
		func(tenant, from, to, amount, supply uint64) bool {
			reg := compliance.NewRegistry(compliance.RegistryConfig{
				Address:    addrFrom(tenant),
				Catalog:    compliance.NewCatalog(),
				Bindings:   memory.NewBindingStore(),
				State:      memory.NewStateStore(),
				Authorizer: az,
			})
			v, err := reg.Evaluate(context.Background(), compliance.Transfer{
				From:    addrFrom(from),
				To:      addrFrom(to),
				Amount:  types.NewAmount(amount),
				Context: compliance.LedgerContext{TotalSupply: types.NewAmount(supply)},
			})
			return err == nil && v.Allowed
		},
		gen.UInt64(),
		gen.UInt64Range(0, 3),
		gen.UInt64Range(0, 3),
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

// Property: a module bound to tenant A only never accepts a relayed call
// arriving through tenant B, whatever the caller's role in B.
func TestRegistryProperty_RelayToModuleBoundElsewhereFails(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("relay through an unbound registry is unauthorized", prop.ForAll(
		func(tenantA, tenantB uint64, limit uint64) bool {
			if tenantA == tenantB {
				return true
			}
			a, b := addrFrom(tenantA+1), addrFrom(tenantB+1)

			az, err := authz.New(authz.Config{})
			if err != nil {
				return false
			}
			_ = az.GrantRole(a, ownerAddr, authz.RoleOwner)
			_ = az.GrantRole(b, ownerAddr, authz.RoleOwner)

			m := newStub(9, compliance.KindSupplyCap)
			catalog := compliance.NewCatalog(m)
			bindings := memory.NewBindingStore()
			state := memory.NewStateStore()
			newReg := func(addr common.Address) *compliance.Registry {
				return compliance.NewRegistry(compliance.RegistryConfig{
					Address: addr, Catalog: catalog, Bindings: bindings, State: state, Authorizer: az,
				})
			}
			regA, regB := newReg(a), newReg(b)
			if err := regA.BindModule(context.Background(), ownerAddr, m.addr); err != nil {
				return false
			}

			_, err = regB.RelayCommand(context.Background(), ownerAddr, m.addr,
				compliance.SetSupplyLimit{Limit: types.NewAmount(limit)})
			return errors.Is(err, compliance.ErrUnauthorized) && len(m.handled) == 0
		},
		gen.UInt64Range(0, 1<<40),
		gen.UInt64Range(0, 1<<40),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
