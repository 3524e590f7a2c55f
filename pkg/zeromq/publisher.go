package zeromq

import (
	"fmt"
	"sync"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/pantilt/pkg/log"
)

// Publisher sends topic-framed messages on a PUB socket. Sends never wait for
// subscribers: a message with nobody listening, or past the high water mark,
// is dropped by ZeroMQ.
type Publisher struct {
	socket   *zmq4.Socket
	endpoint string
	logger   log.Logger
	running  bool
	mu       sync.Mutex

	sent   int64
	failed int64
}

// NewPublisher opens a PUB socket on the endpoint.
func (s *ZeroMQService) NewPublisher(ep Endpoint) (*Publisher, error) {
	socket, err := s.newSocket(zmq4.PUB, ep)
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		socket:   socket,
		endpoint: ep.Address,
		logger:   s.logger,
		running:  true,
	}
	s.track(p)
	s.logger.Infof("Publisher %s %s", boundOrConnected(ep.Bind), ep.Address)
	return p, nil
}

// PublishMessage sends a message with the given topic
func (p *Publisher) PublishMessage(topic string, message []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrServiceClosed
	}

	// Send two messages in sequence (topic first, then message)
	if _, err := p.socket.Send(topic, zmq4.SNDMORE); err != nil {
		p.failed++
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := p.socket.SendBytes(message, 0); err != nil {
		p.failed++
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.sent++
	return nil
}

// Stats returns the number of sent and failed publishes.
func (p *Publisher) Stats() (sent, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.failed
}

// Close cleans up resources
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false
	if p.socket != nil {
		p.socket.Close()
		p.socket = nil
	}
	p.logger.Debugf("Publisher on %s closed", p.endpoint)
}

func boundOrConnected(bind bool) string {
	if bind {
		return "bound to"
	}
	return "connected to"
}
