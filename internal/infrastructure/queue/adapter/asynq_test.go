package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go-chatty-client/internal/infrastructure/queue/port"
)

func TestParseQueueWeights(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]int
	}{
		{"chat=6,default=3,low=1", map[string]int{"chat": 6, "default": 3, "low": 1}},
		{" chat , default=0 ", map[string]int{"chat": 1, "default": 1}},
		{"=4,,", map[string]int{}},
		{"", map[string]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseQueueWeights(tt.in))
		})
	}
}

func TestEnqueueOptions(t *testing.T) {
	assert.Len(t, enqueueOptions(nil), 1, "queue is always set")
	assert.Len(t, enqueueOptions([]port.EnqueueOption{{ProcessIn: time.Minute, MaxRetry: 3}}), 3)
	assert.Len(t, enqueueOptions([]port.EnqueueOption{{ProcessAt: time.Now(), ProcessIn: time.Minute}}), 2)
}

func TestConstructorsRequireRedisURL(t *testing.T) {
	_, err := NewAsynqClient("")
	assert.Error(t, err)
	_, err = NewAsynqServer(ServerConfig{}, nil)
	assert.Error(t, err)
}
