package main

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type replyFunc func(ctx context.Context, prompt string) (string, error)

func (f replyFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

func TestPingModel(t *testing.T) {
	var sent string
	reply, err := pingModel(context.Background(), replyFunc(func(_ context.Context, p string) (string, error) {
		sent = p
		return "  Hello! How can I help?\n", nil
	}), time.Second)

	require.NoError(t, err)
	assert.Equal(t, "Hello", sent)
	assert.Equal(t, "Hello! How can I help?", reply)
}

func TestPingModel_EmptyReply(t *testing.T) {
	_, err := pingModel(context.Background(), replyFunc(func(context.Context, string) (string, error) {
		return " ", nil
	}), 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty reply")
}

func TestPingModel_CallFails(t *testing.T) {
	_, err := pingModel(context.Background(), replyFunc(func(context.Context, string) (string, error) {
		return "", eris.New("llm: anthropic: 401 invalid x-api-key")
	}), time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping: model call failed")
}

func TestPingModel_Timeout(t *testing.T) {
	_, err := pingModel(context.Background(), replyFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), 10*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
