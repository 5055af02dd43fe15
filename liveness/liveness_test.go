package liveness_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/go-hsmbus/clock"
	"github.com/stateforward/go-hsmbus/liveness"
)

func TestFeedAndExpire(t *testing.T) {
	mock := clock.NewMock()
	s := liveness.New(2, liveness.WithClock(mock))

	fast, err := s.Register(100 * time.Millisecond)
	require.NoError(t, err)
	slow, err := s.Register(time.Second)
	require.NoError(t, err)
	_, err = s.Register(time.Second)
	assert.ErrorIs(t, err, liveness.ErrCapacity)

	mock.Add(90 * time.Millisecond)
	assert.Empty(t, s.Check())
	require.NoError(t, s.Feed(fast))

	mock.Add(150 * time.Millisecond)
	expired := s.Check()
	require.Len(t, expired, 1)
	assert.Equal(t, fast, expired[0].Token)
	assert.Equal(t, 50*time.Millisecond, expired[0].Overdue)
	assert.Empty(t, s.Check(), "reported once until fed")

	require.NoError(t, s.Feed(fast))
	assert.Empty(t, s.Check())

	s.Unregister(slow)
	_, err = s.Register(time.Second)
	assert.NoError(t, err, "slot freed")
}

func TestFeedUnknown(t *testing.T) {
	s := liveness.New(1)
	assert.ErrorIs(t, s.Feed(uuid.New()), liveness.ErrUnknownToken)
	_, err := s.Register(0)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	mock := clock.NewMock()
	reported := make(chan []liveness.Expired, 1)
	s := liveness.New(1, liveness.WithClock(mock), liveness.WithExpiryHandler(func(expired []liveness.Expired) {
		reported <- expired
	}))
	token, err := s.Register(time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx, 500*time.Millisecond) }()

	require.Eventually(t, func() bool {
		mock.Add(500 * time.Millisecond)
		return len(reported) > 0
	}, time.Second, 10*time.Millisecond)
	expired := <-reported
	require.Len(t, expired, 1)
	assert.Equal(t, token, expired[0].Token)

	cancel()
	assert.NoError(t, <-done)
}
