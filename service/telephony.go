package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CallEventType 通话事件类型
type CallEventType string

const (
	CallConnected    CallEventType = "connected"
	CallDisconnected CallEventType = "disconnected"
)

// CallEvent 通话事件，DurationSeconds仅在挂断时有效
type CallEvent struct {
	Type            CallEventType
	DurationSeconds int
}

// CallHandle 单次通话的控制句柄
type CallHandle interface {
	HangUp() error
	Mute(muted bool) error
	SendDigit(digit rune) error
	// Events 通话结束后关闭
	Events() <-chan CallEvent
}

// Telephony 外呼能力，信令传输不在本服务范围内
type Telephony interface {
	PlaceCall(ctx context.Context, phoneNumber string) (CallHandle, error)
}

const dtmfDigits = "0123456789*#"

// LoopbackTelephony 不接入真实线路的外呼实现：拨号即接通，挂断即断开
type LoopbackTelephony struct {
	clock  Clock
	logger zerolog.Logger
}

// NewLoopbackTelephony 创建本地回环外呼
func NewLoopbackTelephony(clock Clock, logger zerolog.Logger) *LoopbackTelephony {
	if clock == nil {
		clock = SystemClock
	}
	return &LoopbackTelephony{clock: clock, logger: logger}
}

// PlaceCall 拨号
func (t *LoopbackTelephony) PlaceCall(_ context.Context, phoneNumber string) (CallHandle, error) {
	if strings.TrimSpace(phoneNumber) == "" {
		return nil, fmt.Errorf("%w: 电话号码为空", ErrInvalidInput)
	}
	call := &loopbackCall{
		phone:     phoneNumber,
		clock:     t.clock,
		logger:    t.logger,
		events:    make(chan CallEvent, 2),
		startedAt: t.clock.Now(),
	}
	call.events <- CallEvent{Type: CallConnected}
	t.logger.Info().Str("phone", phoneNumber).Msg("外呼接通")
	return call, nil
}

type loopbackCall struct {
	mu        sync.Mutex
	phone     string
	clock     Clock
	logger    zerolog.Logger
	events    chan CallEvent
	startedAt time.Time
	muted     bool
	digits    []rune
	ended     bool
}

func (c *loopbackCall) HangUp() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return nil
	}
	c.ended = true
	duration := int(c.clock.Now().Sub(c.startedAt).Seconds())
	c.events <- CallEvent{Type: CallDisconnected, DurationSeconds: duration}
	close(c.events)
	c.logger.Info().Str("phone", c.phone).Int("duration", duration).Msg("外呼挂断")
	return nil
}

func (c *loopbackCall) Mute(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return fmt.Errorf("%w: 通话已结束", ErrInvalidState)
	}
	c.muted = muted
	return nil
}

func (c *loopbackCall) SendDigit(digit rune) error {
	if !strings.ContainsRune(dtmfDigits, digit) {
		return fmt.Errorf("%w: 无效按键 %q", ErrInvalidInput, digit)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return fmt.Errorf("%w: 通话已结束", ErrInvalidState)
	}
	c.digits = append(c.digits, digit)
	return nil
}

func (c *loopbackCall) Events() <-chan CallEvent {
	return c.events
}
