package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackTelephony(t *testing.T) {
	clock := newFakeClock(t0)
	tel := NewLoopbackTelephony(clock, zerolog.Nop())

	_, err := tel.PlaceCall(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	call, err := tel.PlaceCall(context.Background(), "+15550100")
	require.NoError(t, err)

	ev := <-call.Events()
	assert.Equal(t, CallConnected, ev.Type)

	require.NoError(t, call.Mute(true))
	require.NoError(t, call.SendDigit('#'))
	assert.ErrorIs(t, call.SendDigit('a'), ErrInvalidInput)

	clock.Advance(42 * time.Second)
	require.NoError(t, call.HangUp())
	require.NoError(t, call.HangUp(), "重复挂断无副作用")

	ev = <-call.Events()
	assert.Equal(t, CallDisconnected, ev.Type)
	assert.Equal(t, 42, ev.DurationSeconds)
	_, open := <-call.Events()
	assert.False(t, open)

	assert.ErrorIs(t, call.Mute(false), ErrInvalidState)
}
