package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/database"
	"go-chatty-client/internal/pkg/chat/application/usecase"
	repoAdapter "go-chatty-client/internal/pkg/chat/persistence/repository/adapter"
)

func newArchiveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <conversation-id>",
		Short: "Copy a conversation's history into the Postgres transcript archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, a.cfg.Archive.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			archive := repoAdapter.NewPgArchiveRepository(pool)
			if err := archive.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("archive schema: %w", err)
			}

			out, err := usecase.NewArchiveConversationUseCase(a.repo, archive).Execute(ctx, usecase.ArchiveConversationInput{ConversationID: id})
			if err != nil {
				return err
			}
			a.log.Info("conversation archived",
				zap.Int64("conversation_id", id),
				zap.Int("fetched", out.Fetched),
				zap.Int64("written", out.Written),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d messages (%d in archive for conversation %d)\n", out.Written, out.Archived, id)
			return nil
		},
	}
}
