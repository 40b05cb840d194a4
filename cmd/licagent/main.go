package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/client"
	"github.com/adamscao/licenseserver/internal/fingerprint"
	"github.com/adamscao/licenseserver/internal/licensefile"
)

const envPrefix = "LICAGENT"

// settings are read from LICAGENT_* variables and overridden by flags
type settings struct {
	Server        string        `default:"http://localhost:8080"`
	LicenseFile   string        `split_words:"true" default:"~/.licagent/license.json"`
	PublicKeyFile string        `split_words:"true" default:"~/.licagent/public_key.pem"`
	Timeout       time.Duration `default:"30s"`
	Username      string
	Password      string
}

var (
	// host access, replaced in tests
	probe fingerprint.Probe = fingerprint.SystemProbe()
	appFs afero.Fs          = afero.NewOsFs()
	now                     = time.Now

	agent   settings
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "licagent",
	Short: "License client for this machine",
	Long:  "Activates, stores and verifies the license bound to this machine",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
		return expandPaths()
	},
	SilenceUsage: true,
}

func init() {
	if err := envconfig.Process(envPrefix, &agent); err != nil {
		log.WithError(err).Warn("Ignoring invalid LICAGENT environment")
	}

	rootCmd.PersistentFlags().StringVarP(&agent.Server, "server", "s", agent.Server, "License server URL")
	rootCmd.PersistentFlags().StringVarP(&agent.LicenseFile, "license", "l", agent.LicenseFile, "License file path")
	rootCmd.PersistentFlags().StringVar(&agent.PublicKeyFile, "public-key", agent.PublicKeyFile, "Server public key path")
	rootCmd.PersistentFlags().DurationVar(&agent.Timeout, "timeout", agent.Timeout, "Request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(restoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func expandPaths() error {
	for _, p := range []*string{&agent.LicenseFile, &agent.PublicKeyFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %s: %w", *p, err)
		}
		*p = filepath.Clean(expanded)
	}
	return nil
}

func newClient() *client.Client {
	return client.New(agent.Server, client.WithTimeout(agent.Timeout))
}

func licenseStore() *licensefile.Store {
	return licensefile.New(appFs, agent.LicenseFile)
}
