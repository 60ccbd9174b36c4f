package adapter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-chatty-client/internal/infrastructure/cache/port"
)

// Runs against a real server only when CHAT_TEST_REDIS_URL is set.
func TestRedisCache_Integration(t *testing.T) {
	url := os.Getenv("CHAT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHAT_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, url, "chatctl-test:")
	require.NoError(t, err)
	defer c.Close()

	_, _ = c.Del(ctx, "k")
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, port.ErrMiss)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	n, err := c.Del(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "", "")
	assert.Error(t, err)
	_, err = NewRedisCache(context.Background(), "http://not-redis", "")
	assert.Error(t, err)
}
