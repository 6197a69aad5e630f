/*
cellarena-server runs the arena game backend: the physics/world tick
loops, the session-bootstrapping HTTP/WS surface, and the config service
that keeps every live world in sync with the account store's gameplay
settings. Top-level goroutine supervision uses errgroup, generalized from
one connection's read/ping/publish loops to the whole process's
top-level components.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cellarena/account"
	"cellarena/gameconfig"
	"cellarena/httpapi"
	"cellarena/protocol"
	"cellarena/pubsub"
	"cellarena/session"
	"cellarena/snapshot"
	"cellarena/stats"
	"cellarena/worldstate"

	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "./config.yaml", "path to the runtime config file")
	printConfig = flag.Bool("print-config", false, "print the resolved runtime config as YAML and exit")
)

func runApp() error {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if *printConfig {
		out, err := dumpConfig(cfg)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := snapshot.NewRepository(cfg.SnapshotDir, cfg.SnapshotWorkers)
	if err != nil {
		return fmt.Errorf("cellarena-server: %w", err)
	}

	store := account.NewInMemoryStore(account.GameplayConfig{
		Width:            cfg.Width,
		Height:           cfg.Height,
		TickRate:         cfg.DefaultTickRate,
		FoodCount:        cfg.FoodCount,
		SnapshotInterval: cfg.SnapshotInterval,
	})
	// A single demo account so the server is runnable standalone; a real
	// deployment wires Store to an external account service instead.
	store.AddUser("player1", "changeme")

	manager := worldstate.NewManager(repo, cfg.DefaultTickRate)
	tokens := session.NewTokenStore()
	conns := session.NewConnectionHub()

	configHub := pubsub.NewHub[gameconfig.Update](8)
	configSvc := gameconfig.NewService(store, manager, configHub, func(public worldstate.PublicConfig) {
		conns.BroadcastGlobal(protocol.NewConfigUpdate(public))
	})
	if err := configSvc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("cellarena-server: %w", err)
	}

	statsHub := pubsub.NewHub[stats.Update](8)
	statsSvc := stats.NewService(store, statsHub)

	server := httpapi.NewServer(cfg.Addr, store, tokens, conns, manager, configSvc, statsSvc)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		configSvc.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return server.Serve(groupCtx)
	})

	fmt.Printf("cellarena-server listening on %s\n", cfg.Addr)
	return group.Wait()
}

func main() {
	if err := runApp(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
