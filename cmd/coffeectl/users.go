package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"makecoffee/internal/accounts"
)

func newCreateUserCmd() *cobra.Command {
	var (
		input     accounts.RegisterInput
		staff     bool
		superuser bool
	)

	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create an account, optionally with moderator or admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDatabaseFunc(cmd.Context())
			if err != nil {
				return err
			}

			input.Username = args[0]
			user, err := accounts.NewService(database).CreateUser(cmd.Context(), input, staff, superuser)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			role := "creator"
			switch {
			case user.IsSuperuser:
				role = "admin"
			case user.IsStaff:
				role = "moderator"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", role, user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.Password, "password", "", "account password")
	cmd.Flags().StringVar(&input.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&input.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&input.LastName, "last-name", "", "last name")
	cmd.Flags().BoolVar(&staff, "staff", false, "grant moderator rights")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "grant admin rights (implies --staff)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
