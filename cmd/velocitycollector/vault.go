package main

import (
	"fmt"
	"os"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/velocitycollector/velocitycollector/internal/config"
	"github.com/velocitycollector/velocitycollector/internal/vault"
)

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "manage the at-rest credential vault",
	}
	cmd.AddCommand(newVaultInitCmd())
	cmd.AddCommand(newVaultAddCmd())
	cmd.AddCommand(newVaultListCmd())
	cmd.AddCommand(newVaultRemoveCmd())
	cmd.AddCommand(newVaultSetDefaultCmd())
	cmd.AddCommand(newVaultPasswdCmd())
	return cmd
}

// vaultPassword returns the vault's master password from
// VELOCITY_VAULT_PASSWORD if set, otherwise prompts interactively with
// masked input. Only used for unlocking/initializing the vault itself —
// individual credential secrets always prompt, since the env var names
// the vault password specifically (spec §6).
func vaultPassword(label string) (string, error) {
	if p := os.Getenv(config.VaultPasswordEnvVar); p != "" {
		return p, nil
	}
	return promptMasked(label)
}

func promptMasked(label string) (string, error) {
	prompt := promptui.Prompt{Label: label, Mask: '*'}
	return prompt.Run()
}

func openVault() (*vault.Vault, error) {
	cfg := config.Load()
	return vault.New(&vault.FileStore{Path: cfg.VaultPath}), nil
}

func newVaultInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create a new, empty vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			password, err := vaultPassword("Vault password")
			if err != nil {
				return err
			}
			confirm, err := vaultPassword("Confirm password")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}
			if err := v.Initialize(password); err != nil {
				return err
			}
			fmt.Println("vault initialized")
			return nil
		},
	}
}

func unlockVault(v *vault.Vault) error {
	password, err := vaultPassword("Vault password")
	if err != nil {
		return err
	}
	ok, err := v.Unlock(password)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("incorrect vault password")
	}
	return nil
}

func newVaultAddCmd() *cobra.Command {
	var username, keyPath string
	var isDefault bool
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "add or replace a credential in the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			if err := unlockVault(v); err != nil {
				return err
			}

			password, err := promptMasked("SSH password (blank to skip)")
			if err != nil {
				return err
			}

			var keyPEM string
			if keyPath != "" {
				data, err := os.ReadFile(keyPath)
				if err != nil {
					return fmt.Errorf("read key file: %w", err)
				}
				keyPEM = string(data)
			}

			now := time.Now().UTC()
			return v.Add(vault.Credential{
				Name: args[0], Username: username, Password: password,
				KeyPEM: keyPEM, IsDefault: isDefault, CreatedAt: now, UpdatedAt: now,
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "SSH username")
	cmd.Flags().StringVar(&keyPath, "key-file", "", "path to a PEM private key to store")
	cmd.Flags().BoolVar(&isDefault, "default", false, "make this the default credential")
	return cmd
}

func newVaultListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list credential names and what secrets each has (never plaintext)",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			if err := unlockVault(v); err != nil {
				return err
			}
			summaries, err := v.List()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Username", "Password", "Key", "Passphrase", "Default"})
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			for _, s := range summaries {
				table.Append([]string{s.Name, s.Username, yesNo(s.HasPassword), yesNo(s.HasKey), yesNo(s.HasPassphrase), yesNo(s.IsDefault)})
			}
			table.Render()
			return nil
		},
	}
}

func newVaultRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "delete a credential from the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			if err := unlockVault(v); err != nil {
				return err
			}
			return v.Remove(args[0])
		},
	}
}

func newVaultSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <name>",
		Short: "mark a credential as the sole default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			if err := unlockVault(v); err != nil {
				return err
			}
			return v.SetDefault(args[0])
		},
	}
}

func newVaultPasswdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "change the vault's master password",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := openVault()
			if err != nil {
				return err
			}
			old, err := vaultPassword("Current vault password")
			if err != nil {
				return err
			}
			ok, err := v.Unlock(old)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("incorrect vault password")
			}

			prompt := promptui.Prompt{
				Label: "New vault password",
				Mask:  '*',
				Validate: func(input string) error {
					if len(input) < 8 {
						return fmt.Errorf("password must be at least 8 characters")
					}
					return nil
				},
			}
			newPassword, err := prompt.Run()
			if err != nil {
				return err
			}
			confirm := promptui.Prompt{Label: "Confirm new password", Mask: '*'}
			confirmed, err := confirm.Run()
			if err != nil {
				return err
			}
			if newPassword != confirmed {
				return fmt.Errorf("passwords do not match")
			}

			return v.ChangePassword(old, newPassword)
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
