package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/redbridge-network/partychain/core/driver"
	"github.com/redbridge-network/partychain/core/escrow"
	"github.com/redbridge-network/partychain/core/fulfillment"
	"github.com/redbridge-network/partychain/core/metrics"
	"github.com/redbridge-network/partychain/core/oracle"
	"github.com/redbridge-network/partychain/core/partyerr"
	"github.com/redbridge-network/partychain/core/partyevent"
	"github.com/redbridge-network/partychain/core/pricing"
	"github.com/redbridge-network/partychain/core/storage"
	"github.com/redbridge-network/partychain/core/types"
	"github.com/redbridge-network/partychain/core/watcher"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/redbridge-network/partychain/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "partynode"}
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the party node binary version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the party watcher driver's cooperative tick loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lv, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	logrus.SetLevel(lv)
	log := logrus.WithField("component", "cmd/partynode")

	if !cfg.Party.EnablePartyMode {
		log.Info("party mode disabled in configuration, exiting")
		return nil
	}

	reg := prometheus.NewRegistry()
	metricsSet := metrics.New(reg)

	o := oracle.New()
	pricer := pricing.New(o, pricing.DefaultConfig())

	chains := map[types.Currency]watcher.ChainWatcher{
		types.Bitcoin:  watcher.NewBitcoinWatcher(watcher.NewRPCPool("bitcoin", cfg.Chains.BitcoinRPCURLs, nil, 8)),
		types.Ethereum: watcher.NewEthereumWatcher(watcher.NewRPCPool("ethereum", cfg.Chains.EthereumRPCURLs, nil, 8)),
		types.Monero:   watcher.NewMoneroWatcher(watcher.NewRPCPool("monero", cfg.Chains.MoneroRPCURLs, nil, 8)),
		types.Solana:   watcher.NewSolanaWatcher(watcher.NewRPCPool("solana", cfg.Chains.SolanaRPCURLs, nil, 8)),
	}

	store := storage.NewMemStore()
	internal := watcher.NewInternalWatcher(store, o)

	targets := make(driver.TargetWeights, len(cfg.Party.TargetAllocations))
	for name, weight := range cfg.Party.TargetAllocations {
		c, ok := types.ParseCurrency(name)
		if !ok {
			log.WithField("currency", name).Warn("ignoring unrecognized target allocation currency")
			continue
		}
		targets[c] = weight
	}
	var totalWeight float64
	for _, w := range targets {
		totalWeight += w
	}
	if totalWeight > 0 {
		for c, w := range targets {
			targets[c] = w / totalWeight
		}
	}

	maxPerTick := 64
	d := driver.New(driver.Config{
		Chains:  chains,
		Internal: internal,
		Oracle:  o,
		Pricer:  pricer,
		Fold:    partyevent.NewPartyEvents(),
		Fulfill: fulfillment.NewEngine(maxPerTick),
		Custody: escrow.New(),
		Signer:  unavailableSigningCoordinator{},
		Addrs:   emptyAddressSource{},
		Targets: targets,
		Metrics: metricsSet,
	})

	tickInterval := driver.TickInterval
	if cfg.Party.PollIntervalMS > 0 {
		tickInterval = time.Duration(cfg.Party.PollIntervalMS) * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutdown signal received")
		cancel()
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	log.WithField("interval", tickInterval).Info("party watcher driver starting")
	for {
		select {
		case <-ctx.Done():
			log.Info("party watcher driver stopped")
			return nil
		case now := <-ticker.C:
			if err := d.Tick(ctx, now); err != nil {
				log.WithError(err).Error("driver tick failed")
			}
		}
	}
}

// emptyAddressSource watches nothing until a deposit-key allocation source
// (core/partymeta) is wired to a running keygen session's resulting
// addresses; this binary boots with no watched addresses rather than
// fabricate one.
type emptyAddressSource struct{}

func (emptyAddressSource) WatchedAddresses(types.Currency) []types.Address { return nil }

// unavailableSigningCoordinator reports every fulfillment as unsignable.
// Producing a real signature requires the multi-node room-id transport
// (core/signing.RoomTransport) wired to the other active party members;
// a single standalone binary has no peers to coordinate with, so this
// stands in until the node is run alongside its party.
type unavailableSigningCoordinator struct{}

func (unavailableSigningCoordinator) Sign(ctx context.Context, payload fulfillment.PreparedPayload) ([]byte, error) {
	return nil, partyerr.New(partyerr.KindSigning, "no party peers configured for threshold signing")
}
