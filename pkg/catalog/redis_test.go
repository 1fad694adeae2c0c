package catalog

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingResetter struct{ n atomic.Int32 }

func (r *countingResetter) ResetCatalog() { r.n.Add(1) }

func TestResetSubscriber_Redis(t *testing.T) {
	addr := os.Getenv("TOOLGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TOOLGATE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	channel := "toolgate:test:" + t.Name()
	target := &countingResetter{}
	sub := NewResetSubscriber(client, channel, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	require.Eventually(t, func() bool {
		_ = PublishReset(context.Background(), client, channel, "test")
		return target.n.Load() > 0
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
