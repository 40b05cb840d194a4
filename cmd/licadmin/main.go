package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/service"
	"github.com/adamscao/licenseserver/internal/signing"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	configPath string
	verbose    bool
	cfg        *config.Config
	database   *db.DB
)

var rootCmd = &cobra.Command{
	Use:   "licadmin",
	Short: "License server administration tool",
	Long:  "Administrative tool for managing license server users, products, licenses, keys and audit logs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
	SilenceUsage: true,
}

func init() {
	// Root flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/licenseserver/config.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// Add commands
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(licenseCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func initDB() error {
	// Load configuration
	if err := loadConfig(); err != nil {
		return err
	}

	// Connect to database
	var err error
	database, err = db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// newService builds the license service for commands that re-sign licenses
func newService() (*service.Service, error) {
	keys := signing.NewKeyStore(cfg.Keys.PrivateKeyPath, cfg.Keys.PublicKeyPath)
	signer, err := keys.Signer()
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	verifier, err := keys.Verifier()
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}

	return service.New(
		repository.NewLicenseRepository(database.DB),
		repository.NewLicenseLogRepository(database.DB),
		license.NewIssuer(license.NewKeyGenerator(cfg.License.Company)),
		signer, verifier,
	), nil
}

// recordAction writes an audit entry for a change made from the command line
func recordAction(cmd *cobra.Command, action, username, details string) {
	entry := &models.AuditLog{
		Action:    action,
		Username:  username,
		ClientIP:  "cli",
		UserAgent: "licadmin",
		Success:   true,
		Details:   details,
	}
	if err := repository.NewAuditRepository(database.DB).Create(cmd.Context(), entry); err != nil {
		log.WithError(err).Warn("Failed to write audit log")
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
