package command

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/eoncord/chatsync-go/chatsync"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <conversation>",
		Short: "Print one page of conversation history, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				limit = app.cfg.PageSize
			}
			before, _ := cmd.Flags().GetString("before")

			page, err := app.api.ListMessages(cmd.Context(), args[0], limit, before)
			if err != nil {
				return fmt.Errorf("list messages: %w", err)
			}

			items := slices.Clone(page.Items)
			slices.SortStableFunc(items, func(a, b chatsync.Message) int {
				return a.CreatedAt.Compare(b.CreatedAt)
			})

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "no messages")
				return nil
			}
			now := time.Now()
			for _, m := range items {
				fmt.Fprintln(out, FormatMessage(m, now))
			}
			if page.NextCursor != "" {
				fmt.Fprintf(out, "more: %s history %s --before %s\n", AppName, args[0], page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "page size (default from config)")
	cmd.Flags().String("before", "", "cursor returned by a previous page")
	return cmd
}
