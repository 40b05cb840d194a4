package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/adamscao/licenseserver/internal/api"
	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/logging"
	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/adamscao/licenseserver/internal/policy"
	"github.com/adamscao/licenseserver/internal/service"
	"github.com/adamscao/licenseserver/internal/signing"
	"github.com/adamscao/licenseserver/pkg/keyutil"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/licenseserver/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("License Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		log.WithError(err).Fatal("License server failed")
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"version": Version,
		"commit":  Commit,
		"config":  configPath,
	}).Info("Starting license server")

	if cfg.UsesInsecureAdminToken() {
		log.Warn("Admin token is a well-known placeholder, set admin.token (see licadmin keys admin-token) before exposing the server")
	}

	// Initialize database
	log.WithField("path", cfg.Database.Path).Info("Connecting to database")
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Run migrations
	if err := db.RunMigrations(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.WithField("path", database.Path()).Info("Database ready")

	keys, err := loadKeys(cfg.Keys)
	if err != nil {
		return err
	}
	signer, err := keys.Signer()
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	verifier, err := keys.Verifier()
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}
	if pub, err := keys.PublicKey(); err == nil {
		if fp, err := keyutil.Fingerprint(pub); err == nil {
			log.WithField("fingerprint", fp).Info("Signing key loaded")
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB)
	productRepo := repository.NewProductRepository(database.DB)
	licenseRepo := repository.NewLicenseRepository(database.DB)
	logRepo := repository.NewLicenseLogRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)

	svc := service.New(licenseRepo, logRepo,
		license.NewIssuer(license.NewKeyGenerator(cfg.License.Company)),
		signer, verifier)

	// Create HTTP server
	server := api.NewServer(cfg, api.Dependencies{
		Service:     svc,
		Keys:        keys,
		DB:          database.DB,
		Users:       userRepo,
		Products:    productRepo,
		Licenses:    licenseRepo,
		LicenseLogs: logRepo,
		Audit:       auditRepo,
		Validator:   policy.NewValidator(cfg, licenseRepo),
		Metrics:     metrics.New(),
		Version:     Version,
	})

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("License server stopped")
	return nil
}

func loadKeys(cfg config.KeysConfig) (*signing.KeyStore, error) {
	if cfg.GenerateIfMissing {
		log.WithField("path", cfg.PrivateKeyPath).Info("Loading signing key pair")
		keys, err := signing.LoadOrGenerate(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.Bits)
		if err != nil {
			return nil, fmt.Errorf("failed to load/generate key pair: %w", err)
		}
		return keys, nil
	}

	keys := signing.NewKeyStore(cfg.PrivateKeyPath, cfg.PublicKeyPath)
	if _, err := keys.PrivateKey(); err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return keys, nil
}
