package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	RunE:  createUser,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  listUsers,
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Enable a user account",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setUserEnabled(cmd, args[0], true) },
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Disable a user account",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setUserEnabled(cmd, args[0], false) },
}

var (
	username     string
	password     string
	email        string
	generateTOTP bool
	totpSecret   string
	enabled      bool
	maxLicenses  int
)

func init() {
	// User create flags
	userCreateCmd.Flags().StringVarP(&username, "username", "u", "", "Username (required)")
	userCreateCmd.Flags().StringVarP(&password, "password", "p", "", "Password (required)")
	userCreateCmd.Flags().StringVarP(&email, "email", "e", "", "Email written into issued licenses")
	userCreateCmd.Flags().BoolVar(&generateTOTP, "generate-totp", false, "Generate TOTP secret automatically")
	userCreateCmd.Flags().StringVar(&totpSecret, "totp-secret", "", "Existing TOTP secret")
	userCreateCmd.Flags().BoolVar(&enabled, "enabled", true, "Enable user account")
	userCreateCmd.Flags().IntVar(&maxLicenses, "max-licenses", 0, "Maximum live licenses (0 uses policy)")

	userCreateCmd.MarkFlagRequired("username")
	userCreateCmd.MarkFlagRequired("password")
	userCreateCmd.MarkFlagsMutuallyExclusive("generate-totp", "totp-secret")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userEnableCmd)
	userCmd.AddCommand(userDisableCmd)
}

func createUser(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	// Get or generate TOTP secret
	secret := totpSecret
	if generateTOTP {
		var err error
		secret, err = auth.GenerateTOTPSecret(username)
		if err != nil {
			return fmt.Errorf("failed to generate TOTP secret: %w", err)
		}
	}

	// Hash password
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// Create user
	userRepo := repository.NewUserRepository(database.DB)
	user := &models.User{
		Username:     username,
		PasswordHash: passwordHash,
		TOTPSecret:   secret,
		Email:        email,
		Enabled:      enabled,
		MaxLicenses:  maxLicenses,
	}

	if err := userRepo.Create(cmd.Context(), user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	recordAction(cmd, models.ActionAdminCreateUser, username, "")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nUser created successfully!\n")
	fmt.Fprintf(out, "User ID: %d\n", user.ID)
	fmt.Fprintf(out, "Username: %s\n", user.Username)
	fmt.Fprintf(out, "Enabled: %t\n", user.Enabled)
	fmt.Fprintf(out, "Max licenses: %d\n", user.MaxLicenses)

	if secret != "" {
		fmt.Fprintf(out, "\nTOTP Secret: %s\n", secret)
		fmt.Fprintf(out, "TOTP QR URL: %s\n", auth.GenerateQRCodeURL(secret, username, ""))
		fmt.Fprintf(out, "\nScan the QR URL with a TOTP app (Google Authenticator, Authy, etc.)\n")
	}

	return nil
}

func listUsers(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	userRepo := repository.NewUserRepository(database.DB)
	users, err := userRepo.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "No users found")
		return nil
	}

	fmt.Fprintf(out, "\nTotal users: %d\n\n", len(users))
	fmt.Fprintf(out, "%-5s %-20s %-8s %-6s %-13s %s\n", "ID", "Username", "Enabled", "TOTP", "Max Licenses", "Created")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")

	for _, user := range users {
		fmt.Fprintf(out, "%-5d %-20s %-8s %-6s %-13d %s\n",
			user.ID,
			user.Username,
			yesNo(user.Enabled),
			yesNo(user.HasTOTP()),
			user.MaxLicenses,
			user.CreatedAt.Format(timeLayout),
		)
	}

	return nil
}

func setUserEnabled(cmd *cobra.Command, name string, enable bool) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	userRepo := repository.NewUserRepository(database.DB)
	user, err := userRepo.GetByUsername(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	user.Enabled = enable
	if err := userRepo.Update(cmd.Context(), user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s enabled: %t\n", user.Username, user.Enabled)
	return nil
}
