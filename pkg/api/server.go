// Package api serves the status API of a node and a websocket stream of the
// commands it publishes or executes.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	customlog "github.com/open-teleop/pantilt/pkg/log"
)

// NewServer creates the Fiber app shared by both nodes: root and health
// routes plus the /ws/stream websocket fed by broadcaster.
func NewServer(name string, broadcaster *Broadcaster, logger customlog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": name,
		})
	})

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stream", websocket.New(func(conn *websocket.Conn) {
		StreamWebSocketHandler(conn, broadcaster, logger)
	}))

	return app
}

// Start serves app on port in the background. A listen failure is logged;
// the node keeps running without its API.
func Start(app *fiber.App, port int, logger customlog.Logger) {
	addr := fmt.Sprintf(":%d", port)
	go func() {
		logger.Infof("Status API listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Errorf("Status API stopped: %v", err)
		}
	}()
}

// Shutdown stops app, waiting at most timeout for open requests.
func Shutdown(app *fiber.App, timeout time.Duration, logger customlog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Warnf("Status API forced to shutdown: %v", err)
	}
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	// Default 500 status code
	code := fiber.StatusInternalServerError

	// Check if it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
