package cmd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/realtime"
	"go-chatty-client/internal/infrastructure/telemetry"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/application/session"
	"go-chatty-client/internal/pkg/chat/presentation/console"
)

func newOpenCommand(a *app) *cobra.Command {
	var metricsAddr string
	c := &cobra.Command{
		Use:   "open <conversation-id>",
		Short: "Open a conversation live",
		Long: `Open a conversation: history is printed, new messages stream in over the
socket and every typed line is sent. Type /help for commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireToken(); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			metrics := telemetry.New()
			a.serveMetrics(ctx, metricsAddr, metrics)

			s := a.newSession(metrics)
			defer s.Close()

			if err := s.Open(ctx, id); err != nil {
				return err
			}
			return a.interact(ctx, s, cmd.InOrStdin())
		},
	}
	c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address (overrides metrics.addr)")
	return c
}

func (a *app) newSession(metrics *telemetry.Metrics) *session.Session {
	cfg := a.cfg
	return session.New(session.Config{
		BaseURL:        cfg.API.BaseURL,
		SenderName:     cfg.UI.Username,
		PollInterval:   cfg.Realtime.PollInterval,
		BannerTimeout:  cfg.UI.BannerTimeout,
		ReconnectDelay: cfg.Realtime.ReconnectDelay,
		PendingWindow:  cfg.Realtime.PendingWindow,
		Connection: realtime.ConnectionOptions{
			WriteWait:  cfg.Realtime.WriteWait,
			PingPeriod: cfg.Realtime.PingPeriod,
		},
	}, a.repo, a.tokens, realtime.NewWebsocketDialer(cfg.API.Timeout),
		session.WithLogger(a.log.Named("session")),
		session.WithMetrics(metrics),
		session.WithListener(a.renderer),
	)
}

// interact reads input lines until /quit, end of input or ctx is done.
func (a *app) interact(ctx context.Context, s *session.Session, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := a.handleLine(ctx, s, line)
			if errors.Is(err, chat.ErrUnauthorized) || errors.Is(err, chat.ErrAuthRequired) {
				return err
			}
			if err != nil {
				a.renderer.OnBanner(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func (a *app) handleLine(ctx context.Context, s *session.Session, line string) (bool, error) {
	c, err := console.ParseInput(line)
	if err != nil {
		return false, err
	}
	switch c.Kind {
	case console.CommandQuit:
		return true, nil
	case console.CommandDismiss:
		s.DismissBanner()
	case console.CommandHelp:
		a.renderer.Notice(console.Help)
	case console.CommandHistory:
		a.renderer.Messages(s.Timeline())
	case console.CommandSend, console.CommandReply:
		if c.ReplyToID != nil {
			if _, ok := s.Find(*c.ReplyToID); !ok {
				a.log.Debug("replying to a message that is not loaded", zap.Int64("reply_to", *c.ReplyToID))
			}
		}
		// the failure is already shown on the message and in the banner
		if _, err := s.Send(ctx, c.Content, c.ReplyToID); err != nil {
			if errors.Is(err, chat.ErrUnauthorized) || errors.Is(err, chat.ErrAuthRequired) {
				return true, err
			}
			if errors.Is(err, chat.ErrNoSession) {
				// closed after an auth failure
				return true, err
			}
			a.log.Debug("send failed", zap.Error(err))
		}
	}
	return false, nil
}

func (a *app) serveMetrics(ctx context.Context, addr string, metrics *telemetry.Metrics) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, a.log.Named("metrics")); err != nil {
			a.log.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
