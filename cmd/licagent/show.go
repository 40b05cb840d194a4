package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored license",
	RunE:  showLicense,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the license from its backup",
	RunE:  restoreLicense,
}

var showOnline bool

func init() {
	showCmd.Flags().BoolVar(&showOnline, "online", false, "Include the server's view of the license")
}

func showLicense(cmd *cobra.Command, args []string) error {
	store := licenseStore()
	rec, err := store.Load()
	if err != nil {
		return err
	}
	info, err := store.Info()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "License Key: %s\n", rec.LicenseKey)
	fmt.Fprintf(out, "Customer: %s\n", rec.CustomerName)
	fmt.Fprintf(out, "Username: %s\n", rec.Username)
	fmt.Fprintf(out, "Product: %s (%s)\n", rec.ProductName, rec.ProductID)
	fmt.Fprintf(out, "Type: %s\n", rec.LicenseType)
	fmt.Fprintf(out, "Status: %s\n", rec.Status)
	fmt.Fprintf(out, "Valid: %s to %s\n", rec.StartDate, rec.ExpiryDate)
	fmt.Fprintf(out, "Issued At: %s\n", rec.IssuedAt)
	fmt.Fprintf(out, "File: %s (%d bytes, modified %s)\n", info.Path, info.Size, info.ModTime.Format("2006-01-02 15:04:05"))

	if !showOnline {
		return nil
	}

	summary, err := newClient().LicenseInfo(cmd.Context(), rec.LicenseKey)
	if err != nil {
		return fmt.Errorf("failed to fetch license info: %w", err)
	}
	fmt.Fprintf(out, "Server Status: %s\n", summary.Status)
	fmt.Fprintf(out, "Server Revoked: %s\n", yesNo(summary.IsRevoked))
	fmt.Fprintf(out, "Valid Till: %s\n", summary.ValidTill.UTC().Format(time.RFC3339))

	return nil
}

func restoreLicense(cmd *cobra.Command, args []string) error {
	store := licenseStore()
	if err := store.RestoreBackup(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "License restored from %s\n", store.BackupPath())
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
