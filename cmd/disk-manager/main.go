package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"
	"syscall"

	"github.com/diskwarden/diskwarden/pkg/auth"
	"github.com/diskwarden/diskwarden/pkg/backend"
	"github.com/diskwarden/diskwarden/pkg/disk"
	"github.com/diskwarden/diskwarden/pkg/exechelper/basicexecutor"
	"github.com/diskwarden/diskwarden/pkg/metrics"
	"github.com/diskwarden/diskwarden/pkg/placement"
	"github.com/diskwarden/diskwarden/pkg/server"
	"github.com/diskwarden/diskwarden/pkg/smart"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConfigDir   = "/etc/diskwarden"
	defaultDataDir     = "/var/lib/diskwarden"
	defaultVaultKey    = "diskwarden"
	defaultMetricsAddr = ":9326"
)

var (
	debug          = pflag.Bool("debug", false, "debug mode, false by default")
	backendKind    = pflag.String("backend", string(backend.KindCeph), "storage backend managing the disks, gluster or ceph")
	configDir      = pflag.String("config-dir", defaultConfigDir, "directory holding the per-backend config files")
	endpoint       = pflag.String("endpoint", server.DefaultEndpoint, "listen endpoint, tcp://host:port or unix://path")
	dataDir        = pflag.String("data-dir", defaultDataDir, "directory for the placement database")
	vaultAddr      = pflag.String("vault-addr", "", "vault address, taken from VAULT_ADDR when empty")
	vaultTokenFile = pflag.String("vault-token-file", "", "sink file holding the vault connect token, watched for rotation")
	vaultKey       = pflag.String("vault-key", defaultVaultKey, "KV secret whose value field holds the request token")
	authReject     = pflag.Bool("auth-reject", false, "answer failed authentication with an ERR result instead of staying silent")
	requestDelay   = pflag.Duration("request-delay", server.DefaultRequestDelay, "pause after each processed request")
	metricsAddr    = pflag.String("metrics-addr", defaultMetricsAddr, "prometheus endpoint address, empty disables the exporter")
	ignoreDevices  = pflag.StringArray("ignore-device", nil, "device name glob to hide from discovery, repeatable")
	simulate       = pflag.Bool("simulate", false, "validation-only mode, no backend action mutates the cluster")
)

var BUILDVERSION, BUILDTIME, GOVERSION string

func printVersion() {
	log.Info(fmt.Sprintf("GitCommit:%q, BuildDate:%q, GoVersion:%q", BUILDVERSION, BUILDTIME, GOVERSION))
}

func setupLogging(enableDebug bool) {
	if enableDebug {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&log.TextFormatter{
		DisableColors: true,
		FullTimestamp: true,
		// log with funcname, file fields. eg: func=serveConn file="listener.go:92"
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			s := strings.Split(f.Function, ".")
			funcname := s[len(s)-1]
			filename := path.Base(f.File)
			return funcname, fmt.Sprintf("%s:%d", filename, f.Line)
		},
	})
	log.SetReportCaller(true)
}

func main() {
	pflag.Parse()

	printVersion()

	setupLogging(*debug)

	kind, err := backend.ParseKind(*backendKind)
	if err != nil {
		log.WithFields(log.Fields{"backend": *backendKind}).Error("Invalid backend kind")
		os.Exit(1)
	}

	store, err := placement.Open(*dataDir)
	if err != nil {
		log.WithError(err).Error("Failed to open the placement database")
		os.Exit(1)
	}
	defer store.Close()

	executor := basicexecutor.New()
	prober := smart.NewController(executor)
	be, err := backend.New(kind, *configDir, backend.Options{
		Executor: executor,
		Store:    store,
		SMART:    prober,
	})
	if err != nil {
		log.WithError(err).Error("Failed to configure the storage backend")
		os.Exit(1)
	}

	validator, err := auth.NewVaultValidator(auth.VaultConfig{
		Address:   *vaultAddr,
		TokenFile: *vaultTokenFile,
		Key:       *vaultKey,
	})
	if err != nil {
		log.WithError(err).Error("Failed to connect the token validator")
		os.Exit(1)
	}

	discoverer, err := disk.New(disk.Options{IgnorePatterns: *ignoreDevices})
	if err != nil {
		log.WithError(err).Error("Failed to configure disk discovery")
		os.Exit(1)
	}

	var recorder metrics.Recorder = metrics.Nop{}
	var exporter *metrics.Exporter
	if *metricsAddr != "" {
		exporter = metrics.NewExporter()
		exporter.MustRegister(metrics.NewSMARTCollector(func(ctx context.Context) ([]string, error) {
			disks, err := discoverer.Enumerate(ctx)
			if err != nil {
				return nil, err
			}
			paths := make([]string, 0, len(disks))
			for _, d := range disks {
				paths = append(paths, d.DevPath)
			}
			return paths, nil
		}, prober))
		recorder = exporter
	}

	dispatcher := server.NewDispatcher(server.Config{
		Backend:    be,
		Discovery:  discoverer,
		Auth:       validator,
		Metrics:    recorder,
		AuthReject: *authReject,
		Simulate:   *simulate,
	})
	listener := server.NewListener(*endpoint, dispatcher, *requestDelay)

	if *simulate {
		log.Info("Running in simulate mode, backend actions will be validated but not executed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("Shutting down")
		cancel()
	}()

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return listener.Serve(grpCtx)
	})
	if exporter != nil {
		grp.Go(func() error {
			return exporter.Serve(grpCtx, *metricsAddr)
		})
	}
	if *vaultTokenFile != "" {
		grp.Go(func() error {
			return validator.WatchTokenFile(grpCtx, *vaultTokenFile)
		})
	}

	if err := grp.Wait(); err != nil {
		log.WithError(err).Error("Daemon failed")
		os.Exit(1)
	}

	log.Debug("Completely stopped")
}
