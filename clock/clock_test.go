package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stateforward/go-hsmbus/clock"
)

func TestMake(t *testing.T) {
	base := clock.Make()
	shifted := clock.Make(clock.Config{Offset: time.Hour})
	diff := shifted.Now().Sub(base.Now())
	assert.InDelta(t, float64(time.Hour), float64(diff), float64(time.Second))
}

func TestSince(t *testing.T) {
	mock := clock.NewMock()
	start := mock.Now()
	mock.Add(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, clock.Since(mock, start))
}
