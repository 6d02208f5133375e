package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/reactions"
	"github.com/eoncord/chatsync-go/chatsync/render"
	"github.com/eoncord/chatsync-go/chatsync/session"
	"github.com/eoncord/chatsync-go/chatsync/timeline"
)

var errQuit = errors.New("quit")

const chatHelp = `commands:
  /older                  load older history
  /retry                  retry failed messages
  /edit <id> <text>       edit a message
  /delete <id>            delete a message
  /react <id> <emoji>     toggle a reaction
  /status <status> [text] set presence (online, idle, dnd, offline)
  /quit                   leave`

// NewChatCmd creates the interactive chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <conversation>",
		Short: "Follow a conversation and send lines read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			return app.chat(cmd, args[0], metricsAddr)
		},
	}
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func (a *appContext) chat(cmd *cobra.Command, conversationID, metricsAddr string) error {
	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	reg := prometheus.NewRegistry()
	sess, client, err := a.newSession(reg)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, reg, a.logger)
		defer srv.Close()
	}
	client.OnStateChanged(func(ev chatsync.StateEvent) {
		fmt.Fprintf(errOut, "*** %s\n", ev.NewState)
	})
	defer client.Disconnect()
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		fmt.Fprintln(errOut, "*** push channel unavailable, sending through the API")
	}
	if _, err := sess.Open(ctx, conversationID); err != nil {
		return fmt.Errorf("open %s: %w", conversationID, err)
	}

	p := newPrinter(out, reactionsOf(sess.Reactions))
	p.update(sess.Snapshot())
	unsubscribe := sess.Subscribe(p.update)
	defer unsubscribe()

	fmt.Fprintf(errOut, "*** joined %s, /help for commands\n", conversationID)

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var lastTyping string
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := handleLine(ctx, sess, line, out)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(errOut, "error: %v\n", err)
			}
		case <-ticker.C:
			if line := TypingLine(sess.Typing()); line != lastTyping {
				lastTyping = line
				if line != "" {
					fmt.Fprintf(errOut, "*** %s\n", line)
				}
			}
		}
	}
}

func handleLine(ctx context.Context, sess *session.Session, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := sess.Send(ctx, line, nil)
		return err
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/quit":
		return errQuit
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/older":
		res, err := sess.LoadOlder(ctx)
		if err != nil {
			return err
		}
		if res.Skipped && !sess.LoadState().HasMore {
			fmt.Fprintln(out, "*** no older messages")
		}
	case "/retry":
		for _, e := range sess.Snapshot().Entries {
			if p, ok := e.(chatsync.Pending); ok && p.State == chatsync.LifecycleFailed {
				if err := sess.Retry(ctx, p.TemporaryID); err != nil {
					return err
				}
			}
		}
	case "/edit":
		id, text, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: /edit <id> <text>")
		}
		return sess.Edit(ctx, id, strings.TrimSpace(text))
	case "/delete":
		if rest == "" {
			return errors.New("usage: /delete <id>")
		}
		return sess.Delete(ctx, rest)
	case "/react":
		id, emoji, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: /react <id> <emoji>")
		}
		added, err := sess.ToggleReaction(ctx, id, strings.TrimSpace(emoji))
		if err != nil {
			return err
		}
		verb := "removed"
		if added {
			verb = "added"
		}
		fmt.Fprintf(out, "*** reaction %s\n", verb)
	case "/status":
		status, custom, _ := strings.Cut(rest, " ")
		if status == "" {
			return errors.New("usage: /status <status> [text]")
		}
		return sess.SetStatus(ctx, chatsync.PresenceStatus(status), strings.TrimSpace(custom))
	default:
		return fmt.Errorf("unknown command %s", name)
	}
	return nil
}

func readLines(r io.Reader, ch chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		ch <- scanner.Text()
	}
	close(ch)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

type reactionsOf func(messageID string) []reactions.Aggregate

func (f reactionsOf) For(messageID string) []reactions.Aggregate { return f(messageID) }

// printer writes each entry of the followed conversation once: confirmed
// messages when they appear and pending messages when they fail.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	rs      render.ReactionSource
	now     func() time.Time
	printed map[string]bool
}

func newPrinter(out io.Writer, rs render.ReactionSource) *printer {
	return &printer{out: out, rs: rs, now: time.Now, printed: make(map[string]bool)}
}

func (p *printer) update(snap timeline.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for _, r := range render.Rows(snap, p.rs, now, nil) {
		key := r.Entry.Key()
		switch e := r.Entry.(type) {
		case chatsync.Confirmed:
			if p.printed[key] {
				continue
			}
		case chatsync.Pending:
			if e.State != chatsync.LifecycleFailed || p.printed[key] {
				continue
			}
			r.DaySeparator = ""
			r.Continued = false
		}
		p.printed[key] = true
		fmt.Fprintln(p.out, FormatRow(r, now))
	}
}
