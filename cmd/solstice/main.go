package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solsticelabs/solstice/config"
	"github.com/solsticelabs/solstice/keys"
	"github.com/solsticelabs/solstice/network"
	"github.com/solsticelabs/solstice/node"
	"github.com/solsticelabs/solstice/storage"
	"github.com/solsticelabs/solstice/storage/memory"
	"github.com/solsticelabs/solstice/storage/pebbledb"
)

func main() {
	configPath := flag.String("config", "", "Path to yaml config file")
	genesisTime := flag.Uint64("genesis-time", 0, "Genesis time (Unix timestamp). Defaults to 10 seconds from now.")
	seedHex := flag.String("seed", "", "32-byte hex seed for the local representative key")
	accounts := flag.Uint64("accounts", 2, "Number of equal-weight genesis accounts (devnet)")
	accountIndex := flag.Uint64("account-index", 0, "Genesis account index to run as")
	dataDir := flag.String("datadir", "", "Directory for finalized state (in-memory if empty)")
	listen := flag.String("listen", "", "Listen multiaddr (QUIC)")
	bootnodes := flag.String("bootnodes", "", "Comma-separated bootnode multiaddrs")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address (e.g. :8080)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	level := slog.LevelInfo
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *genesisTime != 0 {
		cfg.GenesisTime = *genesisTime
	}
	if cfg.GenesisTime == 0 {
		cfg.GenesisTime = uint64(time.Now().Unix()) + 10
		logger.Info("genesis time not set, using now + 10 seconds", "genesis_time", cfg.GenesisTime)
	}
	if *listen != "" {
		cfg.ListenAddrs = []string{*listen}
	}
	if *bootnodes != "" {
		cfg.Bootnodes = strings.Split(*bootnodes, ",")
	}

	if *accountIndex >= *accounts {
		fmt.Fprintf(os.Stderr, "error: account-index (%d) must be less than accounts (%d)\n", *accountIndex, *accounts)
		os.Exit(1)
	}

	var seed [32]byte
	if *seedHex != "" {
		raw, err := parseHex32(*seedHex)
		if err != nil {
			logger.Error("bad seed", "error", err)
			os.Exit(1)
		}
		seed = raw
	}

	// Devnet genesis: equal-weight self-representing accounts derived
	// from the seed; the account at index 0 is the genesis leader.
	genesisAccounts := make([]node.GenesisAccount, *accounts)
	var keypair *keys.Keypair
	for i := uint64(0); i < *accounts; i++ {
		kp, err := keys.FromSeedIndex(seed, i)
		if err != nil {
			logger.Error("derive key", "error", err)
			os.Exit(1)
		}
		genesisAccounts[i] = node.GenesisAccount{
			Key:     kp.Public,
			Balance: uint256.NewInt(1_000_000),
		}
		if i == *accountIndex {
			keypair = kp
		}
		if i == 0 {
			cfg.GenesisKey = kp.Public
		}
	}
	logger.Info("running as representative", "index", *accountIndex, "key", keypair.Public.Short())

	var store storage.Store
	if *dataDir != "" {
		s, err := pebbledb.Open(*dataDir)
		if err != nil {
			logger.Error("open store", "error", err)
			os.Exit(1)
		}
		store = s
	} else {
		store = memory.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.New(ctx, cfg, node.Options{
		Keypair:         keypair,
		GenesisAccounts: genesisAccounts,
		Store:           store,
		Logger:          logger,
		EnforceLeaders:  true,
	})
	if err != nil {
		logger.Error("failed to create node", "error", err)
		os.Exit(1)
	}

	host, err := network.NewHost(ctx, network.HostConfig{ListenAddrs: cfg.ListenAddrs})
	if err != nil {
		logger.Error("failed to create host", "error", err)
		os.Exit(1)
	}
	netSvc, err := network.NewService(ctx, network.ServiceConfig{
		Host:         host,
		Handlers:     n.Handlers(),
		Bootnodes:    network.ParseBootnodes(cfg.Bootnodes),
		NetworkName:  cfg.NetworkName,
		SlotDuration: cfg.SlotDuration,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("failed to create network service", "error", err)
		os.Exit(1)
	}
	n.AttachNetwork(netSvc)

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Warn("metrics server", "error", err)
			}
		}()
	}

	netSvc.Start()
	n.Start()
	logger.Info("solstice running", "slot", n.CurrentSlot(), "peers", n.PeerCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	n.Stop()
	netSvc.Stop()
}

func parseHex32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("want %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
