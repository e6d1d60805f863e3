package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-studio/core/transcript"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("EMA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EMA_TEST_REDIS_ADDR not set")
	}

	s, err := Dial(context.Background(), addr,
		WithPrefix("ema-test:"+uuid.NewString()+":"),
		WithTTL(time.Minute))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveLoadDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.Load(ctx, "tab")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, s.Save(ctx, "tab", []transcript.Entry{
		{Handle: 1, Speaker: transcript.SpeakerAssistant, Body: "Pick a format", Choice: transcript.ChoiceOutputFormat},
	}))

	entries, err := s.Load(ctx, "tab")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, transcript.ChoiceOutputFormat, entries[0].Choice)

	ttl, err := s.client.TTL(ctx, s.prefix+"tab").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Delete(ctx, "tab"))
	entries, err = s.Load(ctx, "tab")
	require.NoError(t, err)
	require.Nil(t, entries)
}
