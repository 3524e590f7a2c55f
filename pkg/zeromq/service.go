// Package zeromq carries control messages and detection frames over ZeroMQ
// PUB/SUB sockets. Every message is two frames: topic, then payload.
package zeromq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/pantilt/pkg/log"
)

// Common errors
var (
	ErrServiceClosed  = errors.New("zeromq service is closed")
	ErrInvalidMessage = errors.New("invalid message format")
)

// socketTimeout bounds blocking socket calls so shutdown never hangs.
const socketTimeout = 1 * time.Second

// closer is a socket owner the service must release before terminating the context.
type closer interface {
	Close()
}

// ZeroMQService owns the ZeroMQ context of one node and every socket made from it.
// Close releases the sockets and then terminates the context.
type ZeroMQService struct {
	ctx     *zmq4.Context
	logger  log.Logger
	mu      sync.Mutex
	owned   []closer
	running bool
}

// NewZeroMQService creates a new ZeroMQ context.
func NewZeroMQService(logger log.Logger) (*ZeroMQService, error) {
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	return &ZeroMQService{
		ctx:     ctx,
		logger:  logger,
		running: true,
	}, nil
}

// Endpoint describes one side of a PUB/SUB link.
type Endpoint struct {
	Address           string
	Bind              bool
	HighWaterMark     int
	ReconnectInterval time.Duration
}

func (s *ZeroMQService) newSocket(kind zmq4.Type, ep Endpoint) (*zmq4.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrServiceClosed
	}

	socket, err := s.ctx.NewSocket(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s socket: %w", kind, err)
	}

	if err := configureSocket(socket, kind, ep); err != nil {
		socket.Close()
		return nil, err
	}

	if ep.Bind {
		err = socket.Bind(ep.Address)
	} else {
		err = socket.Connect(ep.Address)
	}
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to %s %s socket to %s: %w", verb(ep.Bind), kind, ep.Address, err)
	}
	return socket, nil
}

func configureSocket(socket *zmq4.Socket, kind zmq4.Type, ep Endpoint) error {
	if err := socket.SetLinger(0); err != nil {
		return fmt.Errorf("failed to set linger option: %w", err)
	}
	if ep.ReconnectInterval > 0 {
		if err := socket.SetReconnectIvl(ep.ReconnectInterval); err != nil {
			return fmt.Errorf("failed to set reconnect interval: %w", err)
		}
	}
	switch kind {
	case zmq4.PUB:
		if ep.HighWaterMark > 0 {
			if err := socket.SetSndhwm(ep.HighWaterMark); err != nil {
				return fmt.Errorf("failed to set send high water mark: %w", err)
			}
		}
		if err := socket.SetSndtimeo(socketTimeout); err != nil {
			return fmt.Errorf("failed to set send timeout: %w", err)
		}
	case zmq4.SUB:
		if ep.HighWaterMark > 0 {
			if err := socket.SetRcvhwm(ep.HighWaterMark); err != nil {
				return fmt.Errorf("failed to set receive high water mark: %w", err)
			}
		}
		if err := socket.SetRcvtimeo(socketTimeout); err != nil {
			return fmt.Errorf("failed to set receive timeout: %w", err)
		}
	}
	return nil
}

func verb(bind bool) string {
	if bind {
		return "bind"
	}
	return "connect"
}

func (s *ZeroMQService) track(c closer) {
	s.mu.Lock()
	s.owned = append(s.owned, c)
	s.mu.Unlock()
}

// Close shuts every publisher and subscriber made by the service, then
// terminates the context. Safe to call more than once.
func (s *ZeroMQService) Close() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	owned := s.owned
	s.owned = nil
	s.mu.Unlock()

	s.logger.Infof("Stopping ZeroMQ service")
	for i := len(owned) - 1; i >= 0; i-- {
		owned[i].Close()
	}

	if err := s.ctx.Term(); err != nil {
		s.logger.Warnf("ZeroMQ context termination: %v", err)
	}
	s.logger.Infof("ZeroMQ service stopped")
}
