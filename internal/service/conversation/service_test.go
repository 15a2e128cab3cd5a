package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/model/conversation"
	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/storage"
)

var key = conversation.Key{ContactID: "5511988887777", Channel: conversation.ChannelWhatsApp}

func newService() *Service {
	return NewService(storage.NewMemoryStore(), nil)
}

func TestCurrentModeDefaultsToAI(t *testing.T) {
	svc := newService()
	assert.Equal(t, conversation.ModeAI, svc.CurrentMode(context.Background(), key))
}

type brokenRepo struct {
	Repository
}

func (brokenRepo) GetState(context.Context, conversation.Key) (conversation.State, error) {
	return conversation.State{}, errors.New("connection reset")
}

func TestCurrentModeReadFailureResolvesToAI(t *testing.T) {
	svc := NewService(brokenRepo{Repository: storage.NewMemoryStore()}, nil)
	assert.Equal(t, conversation.ModeAI, svc.CurrentMode(context.Background(), key))
}

func TestAppendTurnValidates(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.AppendTurn(ctx, conversation.Turn{Channel: conversation.ChannelWeb})
	assert.ErrorIs(t, err, ErrContactRequired)

	_, err = svc.AppendTurn(ctx, conversation.Turn{ContactID: "x", Channel: "telegram"})
	assert.ErrorIs(t, err, ErrInvalidChannel)

	saved, err := svc.AppendTurn(ctx, conversation.Turn{ContactID: "x", Channel: conversation.ChannelWeb, Role: conversation.RoleUser, Text: "oi"})
	require.NoError(t, err)
	assert.Equal(t, conversation.ModeAI, saved.Mode)
	assert.False(t, saved.CreatedAt.IsZero())
}

func TestBulkSetModeReportsChangeOnce(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.AppendTurn(ctx, conversation.Turn{ContactID: key.ContactID, Channel: key.Channel, Role: conversation.RoleUser, Text: "oi"})
	require.NoError(t, err)

	changed, err := svc.BulkSetMode(ctx, key, conversation.ModeHuman, "keyword")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.BulkSetMode(ctx, key, conversation.ModeHuman, "keyword")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, conversation.ModeHuman, svc.CurrentMode(ctx, key))
	turns, err := svc.RecentTurns(ctx, key, HistoryWindow)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.ModeHuman, turns[0].Mode)

	changed, err = svc.BulkSetMode(ctx, key, conversation.ModeAI, "operator")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, conversation.ModeAI, svc.CurrentMode(ctx, key))

	turns, err = svc.RecentTurns(ctx, key, HistoryWindow)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.ModeHuman, turns[0].Mode)
}

func TestBulkSetModeConcurrentCallersChangeOnce(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := svc.BulkSetMode(ctx, key, conversation.ModeHuman, "keyword")
			if err == nil && changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changes)
}

func TestTurnsStayOrderedUnderLock(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	base := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock, err := svc.Lock(ctx, key)
			if err != nil {
				return
			}
			defer unlock()
			// Skewed clocks must not reorder the transcript.
			_, _ = svc.AppendTurn(ctx, conversation.Turn{
				ContactID: key.ContactID,
				Channel:   key.Channel,
				Role:      conversation.RoleUser,
				Text:      "msg",
				CreatedAt: base.Add(time.Duration(n%3) * -time.Second),
			})
		}(i)
	}
	wg.Wait()

	turns, err := svc.RecentTurns(ctx, key, 50)
	require.NoError(t, err)
	require.Len(t, turns, 20)
	for i := 1; i < len(turns); i++ {
		assert.False(t, turns[i].CreatedAt.Before(turns[i-1].CreatedAt))
	}
}
