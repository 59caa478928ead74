package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mailtriage/internal/credential"
)

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage secrets in the system keyring",
	Long: `Store or remove the IMAP password and oracle API key in the system
keyring. Keys match mailbox.password_key and oracle.api_key_name in the
config file. An environment variable such as MAILTRIAGE_IMAP_PASSWORD
takes precedence over the keyring.

Examples:
  mailtriage credentials set imap_password
  mailtriage credentials delete anthropic_api_key`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Store a credential (prompts when value is omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCredentialsSet,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsDelete,
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	key := args[0]

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		err := huh.NewInput().
			Title(fmt.Sprintf("Value for %s", key)).
			EchoMode(huh.EchoModePassword).
			Value(&value).
			Run()
		if err != nil {
			return fmt.Errorf("reading credential: %w", err)
		}
	}
	if value == "" {
		return fmt.Errorf("credential %q must not be empty", key)
	}

	if err := credential.Set(key, value); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored %s\n", key)
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	if err := credential.Delete(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}
