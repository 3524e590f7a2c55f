// Package control runs the control node's detection cycle: take a frame,
// pick the closest target, compute every unit's command and publish them as
// one message.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pantilt/pkg/geometry"
	"github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/perception"
	"github.com/open-teleop/pantilt/pkg/protocol"
)

// CommandComputer turns a sensor-frame target into one command per unit.
// *pantilt.Registry satisfies it.
type CommandComputer interface {
	ComputeAll(targetSensor geometry.Point3D) (protocol.ControlMessage, bool)
}

// PublishHandler is called with every message that was published.
type PublishHandler func(msg protocol.ControlMessage)

// TrackerStatus is a snapshot of the detection loop.
type TrackerStatus struct {
	Frames            int64                    `json:"frames"`
	MissedFrames      int64                    `json:"missed_frames"`
	EmptyFrames       int64                    `json:"empty_frames"`
	DroppedDetections int64                    `json:"dropped_detections"`
	NoCommandCycles   int64                    `json:"no_command_cycles"`
	Published         int64                    `json:"published"`
	PublishErrors     int64                    `json:"publish_errors"`
	LastTarget        *geometry.Point3D        `json:"last_target,omitempty"`
	LastMessage       *protocol.ControlMessage `json:"last_message,omitempty"`
	LastPublishTime   time.Time                `json:"last_publish_time"`
}

// Tracker is the control loop. It is synchronous: one frame is fully
// processed and published before the next one is requested.
type Tracker struct {
	computer  CommandComputer
	publisher *CommandPublisher
	logger    log.Logger

	mu        sync.RWMutex
	status    TrackerStatus
	onPublish PublishHandler
}

// NewTracker creates a tracker publishing through publisher.
func NewTracker(computer CommandComputer, publisher *CommandPublisher, logger log.Logger) *Tracker {
	return &Tracker{
		computer:  computer,
		publisher: publisher,
		logger:    logger,
	}
}

// SetPublishHandler sets the function called after each successful publish.
func (t *Tracker) SetPublishHandler(handler PublishHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPublish = handler
}

// Run processes frames from source until ctx is cancelled or the source is
// exhausted. Frames that fail to arrive are skipped; only an unexpected
// source error ends the loop with an error.
func (t *Tracker) Run(ctx context.Context, source perception.Source) error {
	t.logger.Infof("Tracking loop started, publishing on '%s'", t.publisher.Topic())
	defer t.logger.Infof("Tracking loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		frame, err := source.Next(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			t.logger.Infof("Detection source exhausted")
			return nil
		case errors.Is(err, perception.ErrNoFrame):
			t.mu.Lock()
			t.status.MissedFrames++
			t.mu.Unlock()
			t.logger.Debugf("Skipping cycle: %v", err)
			continue
		default:
			return fmt.Errorf("detection source failed: %w", err)
		}

		t.Process(frame)
	}
}

// Process runs one cycle on frame. It reports whether a message was published.
func (t *Tracker) Process(frame perception.Frame) bool {
	points, dropped := frame.Points()

	t.mu.Lock()
	t.status.Frames++
	t.status.DroppedDetections += int64(dropped)
	t.mu.Unlock()

	if dropped > 0 {
		t.logger.Debugf("Frame %d: dropped %d detections without valid depth", frame.Seq, dropped)
	}

	target, ok := geometry.SelectClosest(points)
	if !ok {
		t.mu.Lock()
		t.status.EmptyFrames++
		t.mu.Unlock()
		t.logger.Debugf("No targets detected.")
		return false
	}
	t.logger.Debugf("Frame %d: closest target at (%.3f, %.3f, %.3f) m", frame.Seq, target.X, target.Y, target.Z)

	msg, ok := t.computer.ComputeAll(target)
	if !ok {
		t.mu.Lock()
		t.status.NoCommandCycles++
		t.status.LastTarget = &target
		t.mu.Unlock()
		t.logger.Warnf("No unit could be pointed at target (%.3f, %.3f, %.3f)", target.X, target.Y, target.Z)
		return false
	}

	if err := t.publisher.Publish(msg); err != nil {
		t.mu.Lock()
		t.status.PublishErrors++
		t.status.LastTarget = &target
		t.mu.Unlock()
		t.logger.Errorf("Frame %d: %v", frame.Seq, err)
		return false
	}

	t.mu.Lock()
	t.status.Published++
	t.status.LastTarget = &target
	t.status.LastMessage = &msg
	t.status.LastPublishTime = time.Now()
	handler := t.onPublish
	t.mu.Unlock()

	if handler != nil {
		handler(msg)
	}
	return true
}

// Status returns a snapshot of the loop counters and the last published message.
func (t *Tracker) Status() TrackerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// StatusHandler handles API requests for the tracking loop status
func (t *Tracker) StatusHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"tracker": t.Status(),
	})
}
