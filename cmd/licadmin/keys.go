package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/signing"
	"github.com/adamscao/licenseserver/pkg/keyutil"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the license signing key pair",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new signing key pair",
	RunE:  generateKeys,
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the public key and its fingerprint",
	RunE:  showKeys,
}

var keysTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Generate a random admin token for admin.token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var (
	privateKeyPath string
	publicKeyPath  string
	keyBits        int
	forceKeys      bool
)

func init() {
	keysGenerateCmd.Flags().StringVar(&privateKeyPath, "private", "", "Private key path (defaults to keys.private_key_path)")
	keysGenerateCmd.Flags().StringVar(&publicKeyPath, "public", "", "Public key path (defaults to keys.public_key_path)")
	keysGenerateCmd.Flags().IntVar(&keyBits, "bits", 0, "RSA key size (defaults to keys.bits)")
	keysGenerateCmd.Flags().BoolVar(&forceKeys, "force", false, "Overwrite an existing key pair")

	keysShowCmd.Flags().StringVar(&publicKeyPath, "public", "", "Public key path (defaults to keys.public_key_path)")

	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysTokenCmd)
}

func generateKeys(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	priv := firstNonEmpty(privateKeyPath, cfg.Keys.PrivateKeyPath)
	pub := firstNonEmpty(publicKeyPath, cfg.Keys.PublicKeyPath)
	bits := keyBits
	if bits == 0 {
		bits = cfg.Keys.Bits
	}

	if _, err := os.Stat(priv); err == nil && !forceKeys {
		return fmt.Errorf("private key %s already exists, use --force to replace it", priv)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	key, err := signing.GenerateKeyPair(priv, pub, bits)
	if err != nil {
		return err
	}

	fp, err := keyutil.Fingerprint(&key.PublicKey)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key pair generated (%d bits)\n", bits)
	fmt.Fprintf(out, "Private key: %s\n", priv)
	fmt.Fprintf(out, "Public key:  %s\n", pub)
	fmt.Fprintf(out, "Fingerprint: %s\n", fp)
	fmt.Fprintf(out, "\nLicenses signed with a previous key no longer verify.\n")
	return nil
}

func showKeys(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	pub, err := signing.LoadPublicKey(firstNonEmpty(publicKeyPath, cfg.Keys.PublicKeyPath))
	if err != nil {
		return err
	}

	pemData, err := signing.EncodePublicKeyPEM(pub)
	if err != nil {
		return err
	}
	fp, err := keyutil.Fingerprint(pub)
	if err != nil {
		return err
	}

	authorized, err := keyutil.AuthorizedKey(pub)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fingerprint: %s\n", fp)
	fmt.Fprintf(out, "Bits: %d\n", pub.N.BitLen())
	fmt.Fprintf(out, "SSH: %s\n\n", authorized)
	fmt.Fprint(out, string(pemData))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
