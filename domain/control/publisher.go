package control

import (
	"fmt"

	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// MessagePublisher defines the interface for publishing messages
type MessagePublisher interface {
	PublishMessage(topic string, data []byte) error
}

// CommandPublisher encodes a whole ControlMessage into one payload and
// publishes it on the control topic. It never waits for a subscriber.
type CommandPublisher struct {
	publisher MessagePublisher
	codec     protocol.Codec
	topic     string
	logger    log.Logger
}

// NewCommandPublisher creates a publisher for the given topic and codec.
func NewCommandPublisher(publisher MessagePublisher, codec protocol.Codec, topic string, logger log.Logger) *CommandPublisher {
	return &CommandPublisher{
		publisher: publisher,
		codec:     codec,
		topic:     topic,
		logger:    logger,
	}
}

// Publish sends msg as a single message.
func (p *CommandPublisher) Publish(msg protocol.ControlMessage) error {
	payload, err := p.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	if err := p.publisher.PublishMessage(p.topic, payload); err != nil {
		return fmt.Errorf("failed to publish on '%s': %w", p.topic, err)
	}
	p.logger.Debugf("Published %d unit commands on '%s' (%s, %d bytes)",
		len(msg.Units), p.topic, p.codec.Name(), len(payload))
	return nil
}

// Topic returns the control topic.
func (p *CommandPublisher) Topic() string {
	return p.topic
}
