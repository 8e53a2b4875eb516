package main

import (
	"fmt"
	"os"

	"golang.org/x/time/rate"

	"driftshare.io/driftshare/pkg/access"
	"driftshare.io/driftshare/pkg/config"
	"driftshare.io/driftshare/pkg/core"
	"driftshare.io/driftshare/pkg/crypto"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/retriever"
	"driftshare.io/driftshare/pkg/storage"
)

// node bundles the long-lived handles a CLI command needs: the store, the
// article-network pool, and the components built on top of them. Every
// command opens one, does its work, and closes it before returning.
type node struct {
	cfg      config.Config
	store    storage.Store
	net      *netpkg.Pool
	access   *access.Control
	publish  *core.Publisher
	retrieve *retriever.Retriever
}

func openNode() (*node, error) {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", e)
		}
		return nil, fmt.Errorf("invalid configuration")
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	netCfg := cfg.ToNetConfig()
	netCfg.RateLimit = rateFromMbps(cfg.Upload.RateLimitPerSec)
	pool := netpkg.New(netCfg, netpkg.NewNNTPClient())

	accessCtl := access.New(store, crypto.NewShareID)

	return &node{
		cfg:      cfg,
		store:    store,
		net:      pool,
		access:   accessCtl,
		publish:  core.NewPublisher(store, pool, accessCtl),
		retrieve: retriever.New(store, pool, accessCtl),
	}, nil
}

func (n *node) Close() {
	n.net.Close()
	n.store.Close()
}

func openStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Kind {
	case "raft":
		return storage.NewRaftStore(storage.RaftConfig{
			NodeID:    "driftshare",
			BindAddr:  "127.0.0.1:7946",
			DataDir:   cfg.Storage.Path,
			Bootstrap: true,
		})
	default:
		return storage.NewBoltStore(cfg.Storage.Path)
	}
}

func rateFromMbps(articlesPerSec float64) rate.Limit {
	if articlesPerSec <= 0 {
		return 0
	}
	return rate.Limit(articlesPerSec)
}
