package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/zeromq"
)

// Subscription is the receiving side of a pub/sub link. *zeromq.Subscriber satisfies it.
type Subscription interface {
	Start(handler zeromq.MessageHandler) error
	Stop()
}

// ZMQSource reads JSON frames published by an external detector. Only the
// newest frame is kept; a frame the tracker did not get to in time is replaced.
type ZMQSource struct {
	sub     Subscription
	timeout time.Duration
	logger  log.Logger

	frames   chan Frame
	mu       sync.Mutex
	replaced int64
	invalid  int64
}

// NewZMQSource starts receiving on sub. Next gives up after timeout with ErrNoFrame.
func NewZMQSource(sub Subscription, timeout time.Duration, logger log.Logger) (*ZMQSource, error) {
	s := &ZMQSource{
		sub:     sub,
		timeout: timeout,
		logger:  logger,
		frames:  make(chan Frame, 1),
	}
	if err := sub.Start(s.handleMessage); err != nil {
		return nil, fmt.Errorf("failed to start detection subscriber: %w", err)
	}
	return s, nil
}

func (s *ZMQSource) handleMessage(topic string, payload []byte) {
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.mu.Lock()
		s.invalid++
		s.mu.Unlock()
		s.logger.Errorf("Dropping detection frame on '%s': %v", topic, err)
		return
	}
	if err := frame.Intrinsics.Validate(); err != nil {
		s.mu.Lock()
		s.invalid++
		s.mu.Unlock()
		s.logger.Errorf("Dropping detection frame %d: %v", frame.Seq, err)
		return
	}

	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		// Full: discard the stale frame and retry.
		select {
		case <-s.frames:
			s.mu.Lock()
			s.replaced++
			s.mu.Unlock()
		default:
		}
	}
}

// Next waits for the next frame.
func (s *ZMQSource) Next(ctx context.Context) (Frame, error) {
	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case frame := <-s.frames:
		return frame, nil
	case <-timeout:
		return Frame{}, fmt.Errorf("%w: nothing received for %v", ErrNoFrame, s.timeout)
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Stats returns how many frames were replaced before being read and how many were rejected.
func (s *ZMQSource) Stats() (replaced, invalid int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced, s.invalid
}

func (s *ZMQSource) Close() error {
	s.sub.Stop()
	return nil
}
