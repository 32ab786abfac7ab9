package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/codefionn/extbridge/internal/bridge"
	"github.com/codefionn/extbridge/internal/broker"
	"github.com/codefionn/extbridge/internal/config"
	"github.com/codefionn/extbridge/internal/diag"
	"github.com/codefionn/extbridge/internal/identity"
	"github.com/codefionn/extbridge/internal/lockfile"
	"github.com/codefionn/extbridge/internal/logger"
	"github.com/codefionn/extbridge/internal/pidfile"
)

type options struct {
	configPath string
	socketPath string
	logLevel   string
}

func parseArgs(args []string) (*options, error) {
	fs := flag.NewFlagSet("extbridge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to the configuration file")
	fs.StringVar(&opts.socketPath, "socket", "", "Socket path or pipe name, overrides the configuration")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if opts.configPath == "" {
		opts.configPath = config.GetConfigPath()
	}
	return opts, nil
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	opts, parseErr := parseArgs(os.Args[1:])
	if parseErr != nil {
		return parseErr
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Environment and flags override the file, flags last.
	if envLevel := strings.TrimSpace(os.Getenv("EXTBRIDGE_LOG_LEVEL")); envLevel != "" {
		cfg.Log.Level = envLevel
	}
	if envPath := strings.TrimSpace(os.Getenv("EXTBRIDGE_LOG_PATH")); envPath != "" {
		cfg.Log.Path = envPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.socketPath != "" {
		cfg.Socket.Path = opts.socketPath
	}

	var loggerInitialized bool
	defer func() {
		if !loggerInitialized {
			return
		}
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	// An empty log path logs to stderr, for foreground and service-manager runs.
	if cfg.Log.Path == "" {
		logger.InitWithLogger(logger.NewWriter(logger.ParseLevel(cfg.Log.Level), os.Stderr, ""))
	} else if initErr := logger.Init(logger.ParseLevel(cfg.Log.Level), cfg.Log.Path); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	loggerInitialized = true
	slog.SetDefault(slog.New(logger.NewSlogHandler(logger.Global())))

	logger.Info("extbridge starting")

	sink := metrics.NewInmemSink(10*time.Second, time.Minute)
	if _, metricsErr := metrics.NewGlobal(metrics.DefaultConfig("extbridge"), sink); metricsErr != nil {
		return fmt.Errorf("failed to initialize metrics: %w", metricsErr)
	}
	setupMetricsDump(sink)

	lock := lockfile.New(cfg.LockFile)
	if err := lock.TryAcquire(); err != nil {
		if errors.Is(err, lockfile.ErrLocked) {
			return fmt.Errorf("another extbridge instance is running: %w", err)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.Warn("Failed to release lockfile: %v", releaseErr)
		}
	}()

	pf := pidfile.New(cfg.PidFile)
	if err := pf.Write(); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	defer func() {
		if removeErr := pf.Remove(); removeErr != nil {
			logger.Warn("Failed to remove pidfile: %v", removeErr)
		}
	}()

	resolver := identity.NewPeerResolver(extensionProfiles(cfg))
	b := broker.New()
	srv, err := bridge.NewServer(cfg, b, resolver)
	if err != nil {
		return err
	}
	b.SetSink(srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}
	logger.Info("Bridge listening on %s", srv.SocketPath())

	if cfg.DebugAddr != "" {
		debugSrv := diag.NewServer(cfg.DebugAddr, func() interface{} {
			return b.Status()
		})
		if err := debugSrv.Start(); err != nil {
			srv.Stop()
			return fmt.Errorf("failed to start debug server: %w", err)
		}
		defer func() {
			if stopErr := debugSrv.Stop(); stopErr != nil {
				logger.Warn("Failed to stop debug server: %v", stopErr)
			}
		}()
	}

	initialSocket := cfg.Socket.GetSocketPath()
	go func() {
		watchErr := config.Watch(ctx, opts.configPath, func(next *config.Config) {
			logger.Global().SetLevel(logger.ParseLevel(next.Log.Level))
			resolver.SetProfiles(extensionProfiles(next))
			if next.Socket.GetSocketPath() != initialSocket {
				logger.Warn("Socket path changed in configuration; restart to apply")
			}
		})
		if watchErr != nil && ctx.Err() == nil {
			logger.Warn("Config watch stopped: %v", watchErr)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received %s, shutting down", sig)

	cancel()
	if stopErr := srv.Stop(); stopErr != nil {
		logger.Warn("Bridge stop reported: %v", stopErr)
	}
	b.Close()

	return nil
}

// extensionProfiles converts configured extension entries into resolver
// profiles keyed by executable name.
func extensionProfiles(cfg *config.Config) map[string]identity.Profile {
	profiles := make(map[string]identity.Profile, len(cfg.Extensions))
	for name, ext := range cfg.Extensions {
		profiles[name] = identity.Profile{
			ExtensionName:         ext.ExtensionName,
			AppNames:              ext.AppNames,
			SupportsNotifications: ext.SupportsNotifications,
		}
	}
	return profiles
}
