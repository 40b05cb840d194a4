package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/client"
	"github.com/adamscao/licenseserver/internal/fingerprint"
	"github.com/adamscao/licenseserver/pkg/keyutil"
)

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Request a license for this machine and store it",
	RunE:  activate,
}

var (
	activateProduct  string
	activateTOTP     string
	activateCustomer string
	activateType     string
	activateDays     int
)

func init() {
	activateCmd.Flags().StringVarP(&agent.Username, "username", "u", agent.Username, "Account username (or LICAGENT_USERNAME)")
	activateCmd.Flags().StringVarP(&agent.Password, "password", "p", agent.Password, "Account password (or LICAGENT_PASSWORD)")
	activateCmd.Flags().StringVar(&activateTOTP, "totp", "", "TOTP code when the account is enrolled")
	activateCmd.Flags().StringVar(&activateProduct, "product", "", "Product code (required)")
	activateCmd.Flags().StringVar(&activateCustomer, "customer", "", "Customer name")
	activateCmd.Flags().StringVar(&activateType, "type", "", "License type")
	activateCmd.Flags().IntVar(&activateDays, "days", 0, "Requested duration in days")
	activateCmd.MarkFlagRequired("product")
}

func activate(cmd *cobra.Command, args []string) error {
	if agent.Username == "" || agent.Password == "" {
		return errors.New("username and password are required")
	}

	c := newClient()
	fp := fingerprint.Derive(probe)
	log.WithField("fingerprint", fp).Debug("Activating license")

	rec, err := c.GenerateLicense(cmd.Context(), client.GenerateRequest{
		Username:            agent.Username,
		Password:            agent.Password,
		TOTP:                activateTOTP,
		ProductID:           activateProduct,
		CustomerName:        activateCustomer,
		LicenseType:         activateType,
		DurationDays:        activateDays,
		HardwareFingerprint: fp,
	})
	if err != nil {
		return fmt.Errorf("activation failed: %w", err)
	}

	if err := licenseStore().Save(*rec); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "License activated: %s\n", rec.LicenseKey)
	fmt.Fprintf(out, "Valid until: %s\n", rec.ExpiryDate)
	fmt.Fprintf(out, "Saved to: %s\n", agent.LicenseFile)

	key, err := c.PublicKey(cmd.Context())
	if err != nil {
		log.WithError(err).Warn("Could not fetch server public key")
		return nil
	}
	return storePublicKey(cmd, key)
}

// storePublicKey saves the server key on first activation. A stored key is
// never replaced; a server key that differs from it is reported instead.
func storePublicKey(cmd *cobra.Command, key *client.PublicKey) error {
	out := cmd.OutOrStdout()

	stored, err := afero.ReadFile(appFs, agent.PublicKeyFile)
	if err == nil {
		same, err := keyutil.FingerprintMatches(stored, []byte(key.PEM))
		if err != nil {
			return fmt.Errorf("failed to compare public keys: %w", err)
		}
		if !same {
			log.WithFields(log.Fields{
				"path":   agent.PublicKeyFile,
				"server": key.Fingerprint,
			}).Warn("Server public key changed")
			fmt.Fprintf(out, "WARNING: server key %s does not match %s; offline verification uses the stored key\n",
				key.Fingerprint, agent.PublicKeyFile)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read public key: %w", err)
	}

	if err := appFs.MkdirAll(filepath.Dir(agent.PublicKeyFile), 0755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := afero.WriteFile(appFs, agent.PublicKeyFile, []byte(key.PEM), 0644); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	fmt.Fprintf(out, "Server key %s saved to %s\n", key.Fingerprint, agent.PublicKeyFile)

	return nil
}
