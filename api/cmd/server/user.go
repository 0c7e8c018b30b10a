package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mediaDownloader/api/auth"
	"mediaDownloader/api/dto"
	"mediaDownloader/api/service"
)

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			admin, _ := cmd.Flags().GetBool("admin")

			cfg, logger, repo, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer repo.Close()

			users := service.NewUserService(repo, auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)
			user, err := users.Create(cmd.Context(), &dto.CreateUserRequest{
				Username: username,
				Password: password,
				IsAdmin:  admin,
			})
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Printf("Created user %s (id %d, admin %t)\n", user.Username, user.ID, user.IsAdmin)
			return nil
		},
	}
	cmd.Flags().String("username", "", "Login name")
	cmd.Flags().String("password", "", "Initial password")
	cmd.Flags().Bool("admin", false, "Grant admin privileges")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, repo, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer repo.Close()

			users, err := repo.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list users: %w", err)
			}
			if len(users) == 0 {
				fmt.Println("No users found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tADMIN\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", u.ID, u.Username, u.IsAdmin, u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
