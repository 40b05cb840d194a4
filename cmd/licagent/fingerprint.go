package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/fingerprint"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print this machine's hardware fingerprint",
	RunE:  showFingerprint,
}

var fingerprintDetail bool

func init() {
	fingerprintCmd.Flags().BoolVarP(&fingerprintDetail, "detail", "d", false, "List each component")
}

func showFingerprint(cmd *cobra.Command, args []string) error {
	fp := fingerprint.Derive(probe)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, fp)

	if !fingerprintDetail {
		return nil
	}

	parts := fingerprint.Split(fp)
	for _, prefix := range []string{
		fingerprint.PrefixMAC,
		fingerprint.PrefixCPU,
		fingerprint.PrefixDisk,
		fingerprint.PrefixUUID,
		fingerprint.PrefixFallback,
	} {
		if v, ok := parts[prefix]; ok {
			fmt.Fprintf(out, "  %-10s %s\n", prefix, v)
		}
	}
	return nil
}
