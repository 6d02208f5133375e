// Package command implements the chatsync command line.
package command

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const AppName = "chatsync"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "chatsync - terminal client for conversation sync",
		Long:          "chatsync signs in, reads history and follows conversations over the push channel.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "chatsync.yaml", "config file")
	cmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		NewLoginCmd(),
		NewHistoryCmd(),
		NewSendCmd(),
		NewChatCmd(),
	)

	return cmd
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(Version).ExecuteContext(ctx)
}
