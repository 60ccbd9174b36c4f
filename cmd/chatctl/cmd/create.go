package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-chatty-client/internal/pkg/chat/application/usecase"
)

func newCreateCommand(a *app) *cobra.Command {
	create := &cobra.Command{
		Use:   "create",
		Short: "Start a direct or group conversation",
	}

	direct := &cobra.Command{
		Use:   "direct <user-id>",
		Short: "Start a direct conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			conv, err := usecase.NewCreateChatUseCase(a.repo, a.tokens).Execute(cmd.Context(), usecase.CreateChatInput{UserID: userID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created conversation %d: %s\n", conv.ID, conv.DisplayTitle(a.cfg.UI.Username))
			return nil
		},
	}

	var (
		title   string
		members []int64
	)
	group := &cobra.Command{
		Use:   "group --title <title> --member <user-id> [--member <user-id>...]",
		Short: "Start a group conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conv, err := usecase.NewCreateChatUseCase(a.repo, a.tokens).Execute(cmd.Context(), usecase.CreateChatInput{
				IsGroup:   true,
				Title:     title,
				MemberIDs: members,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %d: %s\n", conv.ID, conv.DisplayTitle(a.cfg.UI.Username))
			return nil
		},
	}
	group.Flags().StringVar(&title, "title", "", "group title")
	group.Flags().Int64SliceVar(&members, "member", nil, "member user id (repeatable)")

	create.AddCommand(direct, group)
	return create
}
