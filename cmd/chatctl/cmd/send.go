package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	qadapter "go-chatty-client/internal/infrastructure/queue/adapter"
	"go-chatty-client/internal/pkg/chat/application/task"
	"go-chatty-client/internal/pkg/chat/application/usecase"
	"go-chatty-client/internal/pkg/chat/presentation/console"
)

func newSendCommand(a *app) *cobra.Command {
	var replyTo int64
	c := &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send one message over HTTP",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in, err := console.ParseInput(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			uc := usecase.NewSendMessageUseCase(a.repo)
			uc.Tokens = a.tokens
			uc.Log = a.log
			msg, err := uc.Execute(cmd.Context(), usecase.SendMessageInput{
				ConversationID: id,
				Content:        in.Content,
				ReplyToID:      optionalID(replyTo),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent message %d\n", msg.ID)
			return nil
		},
	}
	c.Flags().Int64Var(&replyTo, "reply-to", 0, "id of the message being replied to")
	return c
}

func newScheduleCommand(a *app) *cobra.Command {
	var (
		replyTo int64
		delay   time.Duration
	)
	c := &cobra.Command{
		Use:   "schedule <conversation-id> <text>... --in <duration>",
		Short: "Queue a message for later delivery by `chatctl worker`",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Queue.RedisURL == "" {
				return fmt.Errorf("queue.redis_url is not configured")
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			in, err := console.ParseInput(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			client, err := qadapter.NewAsynqClient(a.cfg.Queue.RedisURL)
			if err != nil {
				return err
			}
			defer client.Close()

			taskID, err := task.ScheduleSendMessage(cmd.Context(), client, task.SendMessageTaskPayload{
				ConversationID: id,
				Content:        in.Content,
				ReplyToID:      optionalID(replyTo),
			}, delay)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled task %s, due in %s\n", taskID, delay)
			return nil
		},
	}
	c.Flags().DurationVar(&delay, "in", time.Minute, "delay before delivery")
	c.Flags().Int64Var(&replyTo, "reply-to", 0, "id of the message being replied to")
	return c
}

func newWorkerCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver scheduled messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Queue.RedisURL == "" {
				return fmt.Errorf("queue.redis_url is not configured")
			}
			if err := a.requireToken(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			srv, err := qadapter.NewAsynqServer(qadapter.ServerConfig{
				RedisURL:    a.cfg.Queue.RedisURL,
				Concurrency: a.cfg.Queue.Concurrency,
				Queues:      a.cfg.Queue.Queues,
			}, a.log.Named("worker"))
			if err != nil {
				return err
			}
			task.RegisterSendMessageTask(srv, a.repo, a.log.Named("task"))
			a.log.Info("worker started", zap.Int("concurrency", a.cfg.Queue.Concurrency))
			return srv.Run(ctx)
		},
	}
}

func optionalID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}
