// Package main implements the wifid entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"

	"github.com/radio-control/wifid/internal/api"
	"github.com/radio-control/wifid/internal/audit"
	"github.com/radio-control/wifid/internal/auth"
	"github.com/radio-control/wifid/internal/clock"
	"github.com/radio-control/wifid/internal/config"
	"github.com/radio-control/wifid/internal/dhcp"
	"github.com/radio-control/wifid/internal/identity"
	"github.com/radio-control/wifid/internal/mqtt"
	"github.com/radio-control/wifid/internal/netdiag"
	"github.com/radio-control/wifid/internal/supplicant"
	"github.com/radio-control/wifid/internal/telemetry"
	"github.com/radio-control/wifid/internal/wifi"
)

// Version is the service version reported by the health endpoint.
const Version = "1.0.0"

const shutdownTimeout = 30 * time.Second

var log = logging.Logger("cmd")

type options struct {
	configPath string
	addr       string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "wifid",
		Short: "Wi-Fi connectivity manager",
		Long: `wifid drives wpa_supplicant over D-Bus: it keeps a soft AP up according to the
configured policy, provisions station credentials and reports interface diagnostics
over an HTTP API with an SSE telemetry stream.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (overrides http.addr)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// Step 1: configuration and logging
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	log.Infof("Starting wifid v%s", Version)

	wifiCfg, err := managerConfig(cfg.WiFi)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 2: audit logger
	auditLogger, err := audit.NewLogger(audit.Config{
		Dir:        cfg.Audit.Dir,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAgeDays: cfg.Audit.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	defer func() {
		if err := auditLogger.Close(); err != nil {
			log.Errorf("Error closing audit logger: %v", err)
		}
	}()
	log.Infof("Audit log: %s", auditLogger.GetFilePath())

	// Step 3: event sinks
	var mgr *wifi.Manager
	hub := telemetry.NewHub(cfg.Telemetry, telemetry.WithSnapshot(func() interface{} {
		sctx, scancel := context.WithTimeout(ctx, cfg.WiFi.CallTimeout)
		defer scancel()
		return mgr.Status(sctx)
	}))
	sinks := wifi.MultiSink{hub}

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.New(cfg.MQTT)
		sinks = append(sinks, publisher)
		go func() {
			if err := publisher.Start(ctx); err != nil {
				log.Errorf("MQTT publisher stopped: %v", err)
			}
		}()
	}

	// Step 4: supplicant session and manager
	diag := netdiag.NewSystem()
	session := supplicant.NewSession(
		supplicant.DBusDialer{Bus: cfg.WiFi.SupplicantBus},
		cfg.WiFi.StationInterface,
		supplicant.WithCallTimeout(cfg.WiFi.CallTimeout),
		supplicant.WithStateListener(func(st supplicant.ConnState) {
			mgr.OnSessionStateChange(st)
		}),
	)

	mgrOpts := []wifi.Option{
		wifi.WithIdentityStore(identity.NewFileStore(cfg.Identity.Path)),
		wifi.WithInterfaceEnumerator(diag),
		wifi.WithEventSink(sinks),
		wifi.WithAuditLogger(auditLogger),
	}
	if cfg.DHCP.Enabled {
		mgrOpts = append(mgrOpts, wifi.WithDHCPClient(dhcp.NewLauncher(cfg.DHCP.Command)))
	}
	mgr, err = wifi.New(session, clock.NewMonotonic(), wifiCfg, mgrOpts...)
	if err != nil {
		return fmt.Errorf("failed to create Wi-Fi manager: %w", err)
	}
	mgr.Start(ctx)

	supervisor := session.Supervise(ctx, supplicant.BackoffConfig{
		InitialDelay: cfg.WiFi.Backoff.InitialDelay,
		MaxDelay:     cfg.WiFi.Backoff.MaxDelay,
		Multiplier:   cfg.WiFi.Backoff.Multiplier,
		PollInterval: cfg.WiFi.Backoff.PollInterval,
	})

	// Step 5: API server
	var authMiddleware *auth.Middleware
	if cfg.Auth.Enabled {
		verifier, err := auth.NewVerifierFromConfig(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		authMiddleware = auth.NewMiddleware(verifier)
	} else {
		log.Warn("Authentication disabled: every request has full access")
	}
	server := api.NewServer(mgr, diag, hub, authMiddleware, cfg.HTTP, Version)

	addr := opts.addr
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil {
			serverErr <- err
		}
	}()
	log.Infof("wifid started: API base URL http://localhost%s/api/v1", addr)

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		log.Errorf("Server error: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := server.Stop(stopCtx); err != nil {
		log.Errorf("Error stopping HTTP server: %v", err)
	}
	hub.Stop()
	if publisher != nil {
		if err := publisher.Stop(stopCtx); err != nil {
			log.Errorf("Error stopping MQTT publisher: %v", err)
		}
	}

	supervisor.Stop()
	if err := mgr.Close(); err != nil {
		log.Errorf("Error stopping Wi-Fi manager: %v", err)
	}
	if err := session.Close(); err != nil {
		log.Errorf("Error closing supplicant session: %v", err)
	}

	log.Info("wifid shutdown complete")
	return nil
}

func setLogLevel(level string) error {
	lvl, err := logging.LevelFromString(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logging.SetAllLoggers(lvl)
	return nil
}

// managerConfig converts the validated wifi section into the manager's config.
func managerConfig(c config.WiFiConfig) (wifi.Config, error) {
	band, err := netdiag.ParseBand(c.APBand)
	if err != nil {
		return wifi.Config{}, err
	}
	mode, err := wifi.ParseAPMode(c.APMode)
	if err != nil {
		return wifi.Config{}, err
	}
	return wifi.Config{
		StationInterface:         c.StationInterface,
		SSIDPrefix:               c.SSIDPrefix,
		APBand:                   band,
		APChannel:                c.APChannel,
		APMode:                   mode,
		APIdleTimeout:            c.APIdleTimeout,
		StationReconnectInterval: c.StationReconnectInterval,
	}, nil
}
