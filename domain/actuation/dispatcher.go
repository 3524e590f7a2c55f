// Package actuation is the receiving side of the control channel: it decodes
// control messages and hands their servo targets to the motion worker.
package actuation

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// BatchSubmitter accepts one batch of servo targets. *motion.Worker satisfies it.
type BatchSubmitter interface {
	Submit(targets []protocol.ServoTarget) bool
}

// DispatchStatus counts what happened to received messages.
type DispatchStatus struct {
	Received     int64                    `json:"received"`
	Malformed    int64                    `json:"malformed"`
	Empty        int64                    `json:"empty"`
	Dispatched   int64                    `json:"dispatched"`
	Rejected     int64                    `json:"rejected"`
	LastMessage  *protocol.ControlMessage `json:"last_message,omitempty"`
	LastReceived time.Time                `json:"last_received"`
}

// Dispatcher decodes control messages. A message that fails to decode is
// dropped as a whole; nothing from it reaches the servos. A message with no
// units is not dispatched, so the servos hold their last commanded position.
type Dispatcher struct {
	codec     protocol.Codec
	submitter BatchSubmitter
	logger    log.Logger

	mu     sync.RWMutex
	status DispatchStatus
}

// NewDispatcher creates a dispatcher feeding submitter.
func NewDispatcher(codec protocol.Codec, submitter BatchSubmitter, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		codec:     codec,
		submitter: submitter,
		logger:    logger,
	}
}

// HandleMessage is the subscriber callback for the control topic.
func (d *Dispatcher) HandleMessage(topic string, payload []byte) {
	d.mu.Lock()
	d.status.Received++
	d.status.LastReceived = time.Now()
	d.mu.Unlock()

	msg, err := d.codec.Decode(payload)
	if err != nil {
		d.mu.Lock()
		d.status.Malformed++
		d.mu.Unlock()
		d.logger.Errorf("Dropping message on '%s': %v", topic, err)
		return
	}

	targets := msg.Targets()
	if len(targets) == 0 {
		d.mu.Lock()
		d.status.Empty++
		d.mu.Unlock()
		d.logger.Debugf("Empty command on '%s', holding position", topic)
		return
	}
	d.logger.Debugf("Received %d unit commands on '%s' (%d servo targets)", len(msg.Units), topic, len(targets))

	accepted := d.submitter.Submit(targets)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.LastMessage = &msg
	if accepted {
		d.status.Dispatched++
	} else {
		d.status.Rejected++
	}
}

// Status returns a snapshot of the dispatch counters.
func (d *Dispatcher) Status() DispatchStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// StatusHandler handles API requests for the dispatch counters
func (d *Dispatcher) StatusHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "success",
		"dispatcher": d.Status(),
	})
}
