package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/models"
	"github.com/adamscao/licenseserver/internal/verify"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and prune audit logs",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List administrative audit entries",
	RunE:  listAudit,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent authentication failures and verification verdicts",
	RunE:  auditStats,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit entries older than a given age",
	RunE:  pruneAudit,
}

var (
	auditUser   string
	auditAction string
	auditLimit  int
	auditSince  string
	olderThan   string
)

func init() {
	auditListCmd.Flags().StringVarP(&auditUser, "username", "u", "", "Only entries for this user")
	auditListCmd.Flags().StringVarP(&auditAction, "action", "a", "", "Only entries with this action")
	auditListCmd.Flags().IntVarP(&auditLimit, "limit", "l", 50, "Maximum number of entries")

	auditStatsCmd.Flags().StringVar(&auditSince, "since", "24h", "Time window, e.g. 24h or 7d")

	auditPruneCmd.Flags().StringVar(&olderThan, "older-than", "90d", "Age of entries to delete, e.g. 90d")

	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditStatsCmd)
	auditCmd.AddCommand(auditPruneCmd)
}

func listAudit(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	entries, err := repository.NewAuditRepository(database.DB).List(cmd.Context(), auditUser, auditAction, auditLimit)
	if err != nil {
		return fmt.Errorf("failed to list audit logs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries found")
		return nil
	}

	fmt.Fprintf(out, "%-20s %-22s %-15s %-8s %s\n", "Time", "Action", "Username", "Success", "Details")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")
	for _, e := range entries {
		details := e.Details
		if !e.Success {
			details = e.ErrorMsg
		}
		fmt.Fprintf(out, "%-20s %-22s %-15s %-8s %s\n",
			e.Timestamp.Format(timeLayout), e.Action, e.Username, yesNo(e.Success), details)
	}
	return nil
}

func auditStats(cmd *cobra.Command, args []string) error {
	window, err := config.ParseDuration(auditSince)
	if err != nil {
		return fmt.Errorf("invalid --since: %w", err)
	}

	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	since := time.Now().Add(-window)

	failures, err := repository.NewAuditRepository(database.DB).CountByAction(ctx, models.ActionAuthFailed, since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Since %s\n\n", since.Format(timeLayout))
	fmt.Fprintf(out, "%-20s %d\n", "Auth failures", failures)

	logRepo := repository.NewLicenseLogRepository(database.DB)
	for _, v := range []verify.Verdict{
		verify.VerdictValid,
		verify.VerdictNotFound,
		verify.VerdictRevoked,
		verify.VerdictExpired,
		verify.VerdictInvalidSignature,
		verify.VerdictSharingDetected,
	} {
		n, err := logRepo.CountByVerdict(ctx, v, since)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-20s %d\n", v, n)
	}
	return nil
}

func pruneAudit(cmd *cobra.Command, args []string) error {
	age, err := config.ParseDuration(olderThan)
	if err != nil || age <= 0 {
		return fmt.Errorf("invalid --older-than %q", olderThan)
	}

	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	n, err := repository.NewAuditRepository(database.DB).DeleteOld(cmd.Context(), time.Now().Add(-age))
	if err != nil {
		return fmt.Errorf("failed to prune audit logs: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d audit entries\n", n)
	return nil
}
