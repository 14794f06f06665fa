package cmd

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/sessionflow/users"
	"github.com/spf13/cobra"
)

var (
	seedUsername string
	seedPassword string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the admin user",
	Long: `Create an admin account with a password. Running it again for an
existing username leaves the account untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedPassword == "" {
			return errors.New("--password is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := buildApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close()

		_, err = a.controller.SeedAdmin(cmd.Context(), seedUsername, seedPassword)
		switch {
		case errors.Is(err, users.ErrUsernameTaken):
			fmt.Fprintf(cmd.OutOrStdout(), "user %q already exists\n", seedUsername)
			return nil
		case err != nil:
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin user %q\n", seedUsername)
		return nil
	},
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedUsername, "username", "admin", "admin username")
	seedAdminCmd.Flags().StringVar(&seedPassword, "password", "", "admin password")
	rootCmd.AddCommand(seedAdminCmd)
}
