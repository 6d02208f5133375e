package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/session"
	"github.com/eoncord/chatsync-go/chatsync/timeline"
)

var (
	errAwaiting       = errors.New("awaiting confirmation")
	errDeliveryFailed = errors.New("message was not delivered")
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <conversation> <text...>",
		Short: "Send a message and wait for the server to confirm it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			paths, _ := cmd.Flags().GetStringSlice("attach")
			wait, _ := cmd.Flags().GetDuration("wait")
			ctx := cmd.Context()

			sess, client, err := app.newSession(nil)
			if err != nil {
				return err
			}
			defer client.Disconnect()
			defer sess.Close()

			if err := sess.Start(ctx); err != nil {
				app.logger.Debug("sending without push channel", "error", err)
			}
			if _, err := sess.Open(ctx, args[0]); err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}

			attachments, err := app.upload(ctx, paths)
			if err != nil {
				return err
			}
			p, err := sess.Send(ctx, strings.Join(args[1:], " "), attachments)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			if err := awaitConfirmation(ctx, sess, p.TemporaryID, wait); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringSlice("attach", nil, "file to upload and attach (repeatable)")
	cmd.Flags().Duration("wait", 10*time.Second, "how long to wait for the confirmation")
	return cmd
}

func (a *appContext) upload(ctx context.Context, paths []string) ([]chatsync.Attachment, error) {
	limit := uint64(a.cfg.MaxUploadSize)
	attachments := make([]chatsync.Attachment, 0, len(paths))
	for _, path := range paths {
		att, err := a.uploadFile(ctx, path, limit)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

func (a *appContext) uploadFile(ctx context.Context, path string, limit uint64) (chatsync.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return chatsync.Attachment{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return chatsync.Attachment{}, fmt.Errorf("stat attachment: %w", err)
	}
	if size := uint64(info.Size()); size > limit {
		return chatsync.Attachment{}, fmt.Errorf("%s is %s, over the %s upload limit",
			path, humanize.IBytes(size), humanize.IBytes(limit))
	}

	att, err := a.api.UploadFile(ctx, filepath.Base(path), f)
	if err != nil {
		return chatsync.Attachment{}, fmt.Errorf("upload %s: %w", path, err)
	}
	a.logger.Debug("uploaded attachment", "file", path, "size", humanize.IBytes(uint64(info.Size())))
	return *att, nil
}

// awaitConfirmation blocks until the entry keyed tempID is replaced by its
// confirmed message or fails.
func awaitConfirmation(ctx context.Context, sess *session.Session, tempID string, timeout time.Duration) error {
	settled := make(chan error, 1)
	check := func(snap timeline.Snapshot) {
		if err := deliveryState(snap, tempID); !errors.Is(err, errAwaiting) {
			select {
			case settled <- err:
			default:
			}
		}
	}
	unsubscribe := sess.Subscribe(check)
	defer unsubscribe()
	check(sess.Snapshot())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case err := <-settled:
		return err
	case <-ctx.Done():
		return fmt.Errorf("no confirmation within %s: %w", timeout, ctx.Err())
	}
}

func deliveryState(snap timeline.Snapshot, tempID string) error {
	for _, e := range snap.Entries {
		if e.Key() != tempID {
			continue
		}
		if p, ok := e.(chatsync.Pending); ok && p.State == chatsync.LifecycleFailed {
			return errDeliveryFailed
		}
		return errAwaiting
	}
	return nil
}
