package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-chatty-client/internal/infrastructure/auth"
	chat "go-chatty-client/internal/pkg/chat/application/domain"
	"go-chatty-client/internal/pkg/chat/persistence/repository/repositorytest"
)

func TestCreateChatUseCase_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      CreateChatInput
		wantErr string
	}{
		{name: "direct ok", in: CreateChatInput{UserID: 3}},
		{name: "direct without user", in: CreateChatInput{}, wantErr: "user_id is required"},
		{name: "direct negative user", in: CreateChatInput{UserID: -1}, wantErr: "user_id"},
		{name: "group ok", in: CreateChatInput{IsGroup: true, Title: "Buyers", MemberIDs: []int64{2, 3}}},
		{name: "group without title", in: CreateChatInput{IsGroup: true, Title: "  ", MemberIDs: []int64{2}}, wantErr: "title is required"},
		{name: "group without members", in: CreateChatInput{IsGroup: true, Title: "Buyers"}, wantErr: "members is required"},
		{name: "group empty members", in: CreateChatInput{IsGroup: true, Title: "Buyers", MemberIDs: []int64{}}, wantErr: "members"},
		{name: "group duplicate members", in: CreateChatInput{IsGroup: true, Title: "Buyers", MemberIDs: []int64{2, 2}}, wantErr: "must not repeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewCreateChatUseCase(repositorytest.NewFakeRepository(), nil)
			conv, err := uc.Execute(context.Background(), tt.in)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotZero(t, conv.ID)
				return
			}
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateChatUseCase_PropagatesFailures(t *testing.T) {
	repo := repositorytest.NewFakeRepository()
	tokens := auth.NewStaticToken("tok")
	uc := NewCreateChatUseCase(repo, tokens)

	repo.ErrCreate = errors.New("400 bad request")
	_, err := uc.Execute(context.Background(), CreateChatInput{UserID: 3})
	assert.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, "tok", tokens.Token())

	repo.ErrCreate = chat.ErrUnauthorized
	_, err = uc.Execute(context.Background(), CreateChatInput{UserID: 3})
	assert.ErrorIs(t, err, chat.ErrUnauthorized)
	assert.Empty(t, tokens.Token())
}

func TestCreateChatUseCase_Group(t *testing.T) {
	repo := repositorytest.NewFakeRepository()
	uc := NewCreateChatUseCase(repo, nil)

	conv, err := uc.Execute(context.Background(), CreateChatInput{IsGroup: true, Title: " Buyers ", MemberIDs: []int64{2, 3}})
	require.NoError(t, err)
	assert.True(t, conv.IsGroup)
	assert.Equal(t, "Buyers", conv.Title)
	assert.Len(t, conv.Members, 2)
}
