package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"igbenford/pkg/auth"
	"igbenford/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials",
	Long: `Manage stored Instagram credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (IGBENFORD_SESSION_ID, read only)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store Instagram credentials securely",
	Long: `Store the session of an Instagram account in the system keychain or an
encrypted file.

You will be prompted for:
  - Instagram username (if not provided)
  - Session ID (from the sessionid cookie)
  - CSRF Token (from the csrftoken cookie, optional)

The most recently stored account is used by 'igbenford collect' unless
--account names another one.`,
	Example: `  # Interactive login
  igbenford auth login

  # Login with username
  igbenford auth login myusername`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout <username>",
	Short: "Remove stored credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored Instagram accounts with masked credentials, most recent first.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	}

	account, err := newPrompter().PromptAccount(username)
	if err != nil {
		return err
	}

	if err := manager.Store(account); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sanitized := auth.SanitizeAccount(account)
	ui.PrintSuccess("Account saved: " + account.Username)
	fmt.Fprintf(out, "   SessionID: %s\n", sanitized.SessionID)
	if sanitized.CSRFToken != "" {
		fmt.Fprintf(out, "   CSRF Token: %s\n", sanitized.CSRFToken)
	}
	fmt.Fprintln(out, "\nAnalyze your followers with:")
	fmt.Fprintln(out, "  igbenford collect")
	fmt.Fprintln(out, "\n⚠️  Never share your credentials or config files!")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(args[0]); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}
	ui.PrintSuccess("Account removed: " + args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := newCredentialManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'igbenford auth login' to add an account")
		return nil
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Stored Accounts")
	fmt.Fprintln(out)

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(out, "%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Fprintf(out, "   Session ID: %s\n", sanitized.SessionID)
		if sanitized.CSRFToken != "" {
			fmt.Fprintf(out, "   CSRF Token: %s\n", sanitized.CSRFToken)
		}
		if sanitized.UserAgent != "" {
			fmt.Fprintf(out, "   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Fprintf(out, "   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(out)
	}
	return nil
}
