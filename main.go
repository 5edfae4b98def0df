// bank-p2p runs one node of a peer-to-peer bank network: a line-protocol
// TCP server backed by a transactional account store, a proxy to peer
// banks, and an optional operator dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tekuprogramming/bank-p2p/bank"
	"github.com/tekuprogramming/bank-p2p/config"
	"github.com/tekuprogramming/bank-p2p/logging"
	"github.com/tekuprogramming/bank-p2p/metrics"
	"github.com/tekuprogramming/bank-p2p/monitor"
	"github.com/tekuprogramming/bank-p2p/server"
	"github.com/tekuprogramming/bank-p2p/store"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logging.New("bank-p2p", version, cfg.App.LogLevel, cfg.App.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The bank code is the node's outward IPv4 address. Resolve it once
	// and write it back so peers and operators see a stable identity.
	bankCode := cfg.Bank.Code
	if bankCode == "" {
		bankCode = bank.ResolveBankCode()
		cfg.Bank.Code = bankCode
		if *configPath != "" {
			if err := cfg.Save(*configPath); err != nil {
				log.Warn().Err(err).Msg("Failed to persist bank code to config")
			}
		}
	}
	log.Info().
		Str("bank_code", bankCode).
		Str("backend", cfg.Storage.Backend).
		Msg("Starting bank node")

	var st store.Store
	switch cfg.Storage.Backend {
	case "memory":
		st = store.NewMemory()
	default:
		st, err = store.NewPostgres(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}
	defer st.Close()

	pub := monitor.NewPublisher(cfg.Dashboard.EventBuffer)
	m := metrics.New(cfg.Dashboard.Enabled)

	node := bank.NewNode(bank.Options{
		Store:    st,
		Logger:   log.Sub("node"),
		Monitor:  pub,
		Metrics:  m,
		BankCode: bankCode,
		Timeout:  cfg.Timeout(),
	})

	srv := server.New(server.Options{
		Host:       cfg.P2P.Host,
		Port:       cfg.P2P.Port,
		Timeout:    cfg.Timeout(),
		Dispatcher: node,
		Logger:     log.Sub("server"),
		Monitor:    pub,
		Metrics:    m,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	var dash *monitor.Dashboard
	if cfg.Dashboard.Enabled {
		dash = monitor.NewDashboard(monitor.DashboardOptions{
			Port:        cfg.Dashboard.Port,
			BankCode:    bankCode,
			Store:       st,
			Publisher:   pub,
			Logger:      log.Sub("dashboard"),
			Connections: srv.ActiveConnections,
			Running:     srv.Running,
			Metrics:     m.Handler(),
		})
		dash.Start(ctx)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	srv.Stop()
	if dash != nil {
		dash.Stop(context.Background())
	}
	return nil
}
