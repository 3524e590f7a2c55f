package zeromq

import (
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/pantilt/pkg/log"
)

// pollInterval is how long the receive loop waits before rechecking for shutdown.
const pollInterval = 500 * time.Millisecond

// MessageHandler is called on the receive goroutine for every well-formed message.
type MessageHandler func(topic string, payload []byte)

// Subscriber receives topic-framed messages on a SUB socket. The socket is
// only touched by the receive goroutine once Start has been called.
type Subscriber struct {
	socket   *zmq4.Socket
	poller   *zmq4.Poller
	endpoint string
	logger   log.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	wg      sync.WaitGroup

	received int64
	dropped  int64
}

// NewSubscriber opens a SUB socket on the endpoint and subscribes to the
// given topic prefixes. No topics means everything.
func (s *ZeroMQService) NewSubscriber(ep Endpoint, topics ...string) (*Subscriber, error) {
	socket, err := s.newSocket(zmq4.SUB, ep)
	if err != nil {
		return nil, err
	}

	if len(topics) == 0 {
		topics = []string{""}
	}
	for _, topic := range topics {
		if err := socket.SetSubscribe(topic); err != nil {
			socket.Close()
			return nil, fmt.Errorf("failed to subscribe to '%s': %w", topic, err)
		}
	}

	// Create poller for non-blocking receives
	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	sub := &Subscriber{
		socket:   socket,
		poller:   poller,
		endpoint: ep.Address,
		logger:   s.logger,
	}
	s.track(sub)
	s.logger.Infof("Subscriber %s %s (topics %q)", boundOrConnected(ep.Bind), ep.Address, topics)
	return sub, nil
}

// Start begins the message receiving loop
func (r *Subscriber) Start(handler MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrServiceClosed
	}
	if r.running {
		return nil
	}
	r.running = true
	r.wg.Add(1)
	go r.receiveLoop(handler)
	return nil
}

func (r *Subscriber) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Subscriber) receiveLoop(handler MessageHandler) {
	defer r.wg.Done()
	r.logger.Infof("Subscriber started on %s", r.endpoint)

	for r.isRunning() {
		// Poll for messages with timeout to allow for clean shutdown
		sockets, err := r.poller.Poll(pollInterval)
		if err != nil {
			if r.isRunning() {
				r.logger.Errorf("Error polling socket: %v", err)
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		frames, err := r.socket.RecvMessageBytes(0)
		if err != nil {
			if r.isRunning() {
				r.logger.Errorf("Error receiving message: %v", err)
			}
			continue
		}
		if len(frames) != 2 {
			r.mu.Lock()
			r.dropped++
			r.mu.Unlock()
			r.logger.Errorf("Dropping message with %d frames: %v", len(frames), ErrInvalidMessage)
			continue
		}

		r.mu.Lock()
		r.received++
		r.mu.Unlock()

		topic := string(frames[0])
		r.logger.Debugf("Received message on '%s' (%d bytes)", topic, len(frames[1]))
		handler(topic, frames[1])
	}
	r.logger.Infof("Subscriber on %s stopped", r.endpoint)
}

// Stats returns the number of delivered and dropped messages.
func (r *Subscriber) Stats() (received, dropped int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.received, r.dropped
}

// Stop halts the receive loop and waits for it to exit.
func (r *Subscriber) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
}

// Close stops the loop and releases the socket.
func (r *Subscriber) Close() {
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.socket != nil {
		r.socket.Close()
		r.socket = nil
	}
}
