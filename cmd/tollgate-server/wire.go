package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tollgate-labs/tollgate/server/internal/authz"
	"github.com/tollgate-labs/tollgate/server/internal/config"
	dbpkg "github.com/tollgate-labs/tollgate/server/internal/db"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/factory"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/service"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store/memory"
	"github.com/tollgate-labs/tollgate/server/internal/tollgate/store/sqlite"
)

// app is the wired service graph shared by the subcommands.
type app struct {
	svc    *service.ComplianceService
	events store.DecisionEventStore

	close func()
}

type stores struct {
	state      store.StateStore
	bindings   store.BindingStore
	identities store.IdentityStore
	bundles    store.BundleStore
	events     store.DecisionEventStore
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if !common.IsHexAddress(cfg.FactoryAddress) {
		return nil, fmt.Errorf("factory address %q is not an address", cfg.FactoryAddress)
	}
	factoryAddr := common.HexToAddress(cfg.FactoryAddress)

	mode, err := authz.ParseMode(cfg.AuthzMode, cfg.IsDev())
	if err != nil {
		return nil, err
	}
	az, err := authz.New(authz.Config{
		Mode:       mode,
		PolicyPath: cfg.AuthzPolicyPath,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	var (
		st      stores
		closeFn = func() {}
	)
	switch cfg.Store {
	case "memory":
		st = stores{
			state:      memory.NewStateStore(),
			bindings:   memory.NewBindingStore(),
			identities: memory.NewIdentityStore(),
			bundles:    memory.NewBundleStore(),
			events:     memory.NewDecisionEventStore(),
		}
	default:
		db, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
		if err != nil {
			return nil, err
		}
		st, closeFn = sqliteStores(db)
	}

	rec := service.NewDecisionRecorder(st.events, logger)
	f := factory.New(factory.Config{
		Address:    factoryAddr,
		Modules:    factory.NewModules(factoryAddr, st.state, st.bindings, az),
		State:      st.state,
		Bindings:   st.bindings,
		Identities: st.identities,
		Bundles:    st.bundles,
		Authorizer: az,
		OnDecision: rec.Record,
		Logger:     logger,
	})

	n, err := f.Restore(ctx)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("restore assets: %w", err)
	}
	logger.Info("store ready", "backend", cfg.Store, "assets", n, "authz", string(mode))

	return &app{
		svc:    service.NewComplianceService(f, az, rec, logger),
		events: st.events,
		close:  closeFn,
	}, nil
}

// sqliteStores shares one write worker between every store.
func sqliteStores(db *sql.DB) (stores, func()) {
	writer := dbpkg.NewWorker(db)
	st := stores{
		state:      sqlite.NewStateStore(db, writer),
		bindings:   sqlite.NewBindingStore(db, writer),
		identities: sqlite.NewIdentityStore(db, writer),
		bundles:    sqlite.NewBundleStore(db, writer),
		events:     sqlite.NewDecisionEventStore(db, writer),
	}
	return st, func() {
		writer.Close()
		_ = db.Close()
	}
}
