package actuation

import (
	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/pantilt/pkg/motion"
)

// MotionService exposes the servo record and the motion worker over the API.
type MotionService struct {
	state  *motion.State
	worker *motion.Worker
}

// NewMotionService creates a new motion service instance
func NewMotionService(state *motion.State, worker *motion.Worker) *MotionService {
	return &MotionService{state: state, worker: worker}
}

// ServosHandler handles API requests for the last written servo angles
func (s *MotionService) ServosHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "success",
		"servos": s.state.Snapshot(),
	})
}

// MetricsHandler handles API requests for motion worker metrics
func (s *MotionService) MetricsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "success",
		"worker":  s.worker.Name(),
		"metrics": s.worker.GetMetrics(),
	})
}
