package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eoncord/chatsync-go/config"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and print the credentials as environment variables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			signup, _ := cmd.Flags().GetBool("signup")

			auth := app.api.Login
			if signup {
				auth = app.api.Signup
			}
			resp, err := auth(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("login %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%sTOKEN=%s\n", config.EnvPrefix, resp.Token)
			fmt.Fprintf(out, "%sUSER_ID=%s\n", config.EnvPrefix, resp.User.ID)
			fmt.Fprintf(out, "%sUSERNAME=%s\n", config.EnvPrefix, resp.User.Username)
			return nil
		},
	}
	cmd.Flags().Bool("signup", false, "create the account before signing in")
	return cmd
}
