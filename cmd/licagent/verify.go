package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/fingerprint"
	"github.com/adamscao/licenseserver/internal/signing"
	"github.com/adamscao/licenseserver/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the stored license",
	Long:  "Checks the stored license against the server public key. With --online the server is asked as well, which also checks the machine binding and revocation.",
	RunE:  verifyLicense,
}

var verifyOnline bool

func init() {
	verifyCmd.Flags().BoolVar(&verifyOnline, "online", false, "Also verify with the server")
}

// errInvalidLicense makes the command exit non-zero without repeating the
// verdict already printed
type errInvalidLicense verify.Verdict

func (e errInvalidLicense) Error() string {
	return fmt.Sprintf("license is not valid (%s)", string(e))
}

func verifyLicense(cmd *cobra.Command, args []string) error {
	rec, err := licenseStore().Validate()
	if err != nil {
		return err
	}

	pem, err := afero.ReadFile(appFs, agent.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read public key: %w", err)
	}
	key, err := signing.ParsePublicKeyPEM(pem)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result := verify.CheckOffline(signing.NewVerifier(key), *rec, now())
	fmt.Fprintf(out, "Offline: %s (%s)\n", result.Verdict, result.Reason)
	if !result.Valid() {
		return errInvalidLicense(result.Verdict)
	}

	if !verifyOnline {
		return nil
	}

	resp, err := newClient().VerifyLicense(cmd.Context(), rec.LicenseKey, fingerprint.Derive(probe))
	if err != nil {
		return fmt.Errorf("online verification failed: %w", err)
	}
	fmt.Fprintf(out, "Online: %s (%s)\n", resp.Verdict, resp.Reason)
	if resp.AutoRevoked {
		fmt.Fprintln(out, "The server revoked this license")
	}
	if !resp.Valid {
		return errInvalidLicense(resp.Verdict)
	}

	return nil
}
