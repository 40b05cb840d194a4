package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/policy"
	"github.com/adamscao/licenseserver/internal/service"
)

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Manage issued licenses",
}

var licenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List licenses",
	RunE:  listLicenses,
}

var licenseShowCmd = &cobra.Command{
	Use:   "show <license-key>",
	Short: "Show a license and its machine binding",
	Args:  cobra.ExactArgs(1),
	RunE:  showLicense,
}

var licenseRevokeCmd = &cobra.Command{
	Use:   "revoke <license-key>",
	Short: "Revoke a license",
	Args:  cobra.ExactArgs(1),
	RunE:  revokeLicense,
}

var licenseRenewCmd = &cobra.Command{
	Use:   "renew <license-key>",
	Short: "Extend a license and sign it again",
	Args:  cobra.ExactArgs(1),
	RunE:  renewLicense,
}

var licenseLogsCmd = &cobra.Command{
	Use:   "logs <license-key>",
	Short: "Show verification attempts for a license",
	Args:  cobra.ExactArgs(1),
	RunE:  licenseLogs,
}

var (
	filterUser    string
	filterProduct string
	onlyActive    bool
	listLimit     int
	logLimit      int
	renewDays     int
)

func init() {
	licenseListCmd.Flags().StringVarP(&filterUser, "username", "u", "", "Only licenses of this user")
	licenseListCmd.Flags().StringVar(&filterProduct, "product", "", "Only licenses of this product code")
	licenseListCmd.Flags().BoolVar(&onlyActive, "active", false, "Only unrevoked, unexpired licenses")
	licenseListCmd.Flags().IntVarP(&listLimit, "limit", "l", 100, "Maximum number of licenses")

	licenseRenewCmd.Flags().IntVarP(&renewDays, "days", "d", 0, "Days to add (0 uses the default duration)")

	licenseLogsCmd.Flags().IntVarP(&logLimit, "limit", "l", 50, "Maximum number of entries")

	licenseCmd.AddCommand(licenseListCmd)
	licenseCmd.AddCommand(licenseShowCmd)
	licenseCmd.AddCommand(licenseRevokeCmd)
	licenseCmd.AddCommand(licenseRenewCmd)
	licenseCmd.AddCommand(licenseLogsCmd)
}

func listLicenses(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	stored, err := repository.NewLicenseRepository(database.DB).List(cmd.Context(), repository.ListFilter{
		Username:    filterUser,
		ProductCode: filterProduct,
		OnlyActive:  onlyActive,
		Limit:       listLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list licenses: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(stored) == 0 {
		fmt.Fprintln(out, "No licenses found")
		return nil
	}

	now := time.Now()
	fmt.Fprintf(out, "%-34s %-15s %-20s %-12s %s\n", "License Key", "User", "Product", "Expires", "Status")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------")
	for _, s := range stored {
		summary := service.Summarize(s, now)
		status := summary.Status
		if summary.IsRevoked {
			status += " (revoked)"
		}
		fmt.Fprintf(out, "%-34s %-15s %-20s %-12s %s\n",
			summary.LicenseKey, summary.Username, summary.ProductCode, summary.ExpiryDate, status)
	}
	return nil
}

func showLicense(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	stored, err := repository.NewLicenseRepository(database.DB).FindLicenseByKey(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func revokeLicense(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	svc, err := newService()
	if err != nil {
		return err
	}
	if err := svc.Revoke(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke license: %w", err)
	}
	recordAction(cmd, models.ActionLicenseRevoke, "", args[0])

	fmt.Fprintf(cmd.OutOrStdout(), "License %s revoked\n", args[0])
	return nil
}

func renewLicense(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	days, err := policy.NewValidator(cfg, repository.NewLicenseRepository(database.DB)).AdjustDuration(renewDays)
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	renewed, err := svc.Renew(cmd.Context(), args[0], days)
	if err != nil {
		return fmt.Errorf("failed to renew license: %w", err)
	}
	recordAction(cmd, models.ActionLicenseRenew, renewed.Username, fmt.Sprintf(`{"license_key":%q,"days":%d}`, args[0], days))

	fmt.Fprintf(cmd.OutOrStdout(), "License %s renewed until %s\n", renewed.LicenseKey, renewed.ExpiryDate)
	return nil
}

func licenseLogs(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	logs, err := repository.NewLicenseLogRepository(database.DB).ListByKey(cmd.Context(), args[0], logLimit)
	if err != nil {
		return fmt.Errorf("failed to list license logs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(logs) == 0 {
		fmt.Fprintln(out, "No verification attempts recorded")
		return nil
	}

	fmt.Fprintf(out, "%-20s %-17s %-16s %s\n", "Time", "Verdict", "Source IP", "Note")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")
	for _, l := range logs {
		fmt.Fprintf(out, "%-20s %-17s %-16s %s\n", l.Timestamp.Format(timeLayout), l.Verdict, l.SourceIP, l.Note)
	}
	return nil
}
