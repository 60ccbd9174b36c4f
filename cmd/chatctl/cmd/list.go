package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go-chatty-client/internal/pkg/chat/application/reconcile"
	"go-chatty-client/internal/pkg/chat/application/usecase"
)

func newConversationsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List your conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc := usecase.NewListConversationsUseCase(a.repo, a.tokens, a.log)
			convs, err := uc.Execute(cmd.Context())
			if err != nil {
				return err
			}
			a.renderer.Conversations(convs)
			return nil
		},
	}
}

func newUsersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users you can start a conversation with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc := usecase.NewListUsersUseCase(a.repo, a.tokens, a.log)
			users, err := uc.Execute(cmd.Context())
			if err != nil {
				return err
			}
			a.renderer.Users(users)
			return nil
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <conversation-id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			uc := usecase.NewGetMessageUseCase(a.repo, a.tokens, a.log)
			msgs, err := uc.Fetch(cmd.Context(), usecase.GetMessageInput{ConversationID: id})
			if err != nil {
				return err
			}

			// resolve reply previews against the loaded history
			tl := reconcile.NewTimeline(id)
			for _, m := range msgs {
				tl.OnServerMessage(m)
			}
			a.renderer.Messages(tl.View())
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a valid id", usecase.ErrInvalidInput, s)
	}
	return id, nil
}

var errTokenMissing = errors.New("no API token configured: run `chatctl login <token>` or set CHAT_AUTH_TOKEN")

func (a *app) requireToken() error {
	if a.tokens.Token() == "" {
		return errTokenMissing
	}
	return nil
}
