package usecase

import (
	"go.uber.org/zap"

	"go-chatty-client/internal/infrastructure/auth"
)

// degrade applies the listing policy: a rejected token is cleared and reported,
// any other failure becomes an empty list.
func degrade[T any](items []T, err error, tokens auth.TokenSource, log *zap.Logger, what string) ([]T, error) {
	if err == nil {
		if items == nil {
			items = []T{}
		}
		return items, nil
	}
	if isAuthError(err) {
		if tokens != nil {
			tokens.Clear()
		}
		return []T{}, err
	}
	if log != nil {
		log.Warn("listing failed, showing empty list", zap.String("list", what), zap.Error(err))
	}
	return []T{}, nil
}

