package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/open-teleop/pantilt/domain/control"
	"github.com/open-teleop/pantilt/domain/pantilt"
	"github.com/open-teleop/pantilt/pkg/api"
	"github.com/open-teleop/pantilt/pkg/config"
	customlog "github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/perception"
	"github.com/open-teleop/pantilt/pkg/protocol"
	"github.com/open-teleop/pantilt/pkg/zeromq"
	"github.com/open-teleop/pantilt/services"
)

const (
	// Playback rate of recorded detections, roughly the camera frame rate.
	replayInterval = 33 * time.Millisecond
	// How long the tracker waits for a detector frame before skipping a cycle.
	frameTimeout = time.Second
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "controller",
		Short:        "Pan-tilt control node: detections in, servo commands out",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/controller.yaml", "Path to the bootstrap configuration file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	bootstrapCfg, err := config.LoadBootstrapConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath, "controller")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infof("Loaded bootstrap configuration from %s", configPath)

	rigCfg, err := config.LoadConfig(bootstrapCfg.RigConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load rig configuration: %w", err)
	}

	registry, err := pantilt.NewRegistry(rigCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build unit registry: %w", err)
	}

	codec, err := protocol.NewCodec(bootstrapCfg.ZeroMQ.Codec)
	if err != nil {
		return fmt.Errorf("failed to select codec: %w", err)
	}

	zmqService, err := zeromq.NewZeroMQService(logger)
	if err != nil {
		return fmt.Errorf("failed to create ZeroMQ service: %w", err)
	}
	defer zmqService.Close()

	zmqCfg := bootstrapCfg.ZeroMQ
	publisher, err := zmqService.NewPublisher(zeromq.Endpoint{
		Address:           zmqCfg.Endpoint,
		Bind:              zmqCfg.Bind,
		HighWaterMark:     zmqCfg.MessageBufferSize,
		ReconnectInterval: zmqCfg.ReconnectInterval(),
	})
	if err != nil {
		return fmt.Errorf("failed to open control publisher: %w", err)
	}

	source, err := openSource(bootstrapCfg, zmqService, logger)
	if err != nil {
		return fmt.Errorf("failed to open detection source: %w", err)
	}
	defer source.Close()

	commands := control.NewCommandPublisher(publisher, codec, zmqCfg.Topic, logger)
	tracker := control.NewTracker(registry, commands, logger)

	broadcaster := api.NewBroadcaster()
	tracker.SetPublishHandler(func(msg protocol.ControlMessage) {
		broadcaster.Broadcast(api.EventCommand, msg)
	})

	if port := bootstrapCfg.Server.HTTPPort; port > 0 {
		app := api.NewServer("pantilt controller", broadcaster, logger)
		app.Get("/api/status", tracker.StatusHandler)
		app.Get("/api/units", registry.UnitsHandler)
		app.Get("/api/transport", func(c *fiber.Ctx) error {
			sent, failed := publisher.Stats()
			return c.JSON(fiber.Map{
				"status": "success",
				"topic":  zmqCfg.Topic,
				"codec":  codec.Name(),
				"sent":   sent,
				"failed": failed,
			})
		})
		if cfgService, err := services.NewRigConfigService(bootstrapCfg.RigConfigPath(), logger); err == nil {
			api.RegisterConfigRoutes(app, cfgService, logger)
		}
		api.Start(app, port, logger)
		defer api.Shutdown(app, 5*time.Second, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tracker.Run(ctx, source); err != nil {
		logger.Errorf("Tracking loop failed: %v", err)
		return err
	}

	status := tracker.Status()
	logger.Infof("Controller exiting: %d frames, %d published, %d publish errors",
		status.Frames, status.Published, status.PublishErrors)
	return nil
}

// openSource prefers a replay file when one is configured, otherwise
// subscribes to the external detector.
func openSource(cfg *config.BootstrapConfig, zmqService *zeromq.ZeroMQService, logger customlog.Logger) (perception.Source, error) {
	if cfg.Data.ReplayFile != "" {
		path := cfg.Data.ReplayFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Data.Directory, path)
		}
		logger.Infof("Replaying detections from %s", path)
		replay, err := perception.OpenReplay(path, replayInterval)
		if err != nil {
			return nil, err
		}
		return replay, nil
	}

	z := cfg.ZeroMQ
	if z.DetectionsEndpoint == "" {
		return nil, fmt.Errorf("missing required field in bootstrap config: zeromq.detections_endpoint (or data.replay_file)")
	}
	sub, err := zmqService.NewSubscriber(zeromq.Endpoint{
		Address:           z.DetectionsEndpoint,
		Bind:              z.DetectionsBind,
		HighWaterMark:     z.MessageBufferSize,
		ReconnectInterval: z.ReconnectInterval(),
	}, z.DetectionsTopic)
	if err != nil {
		return nil, err
	}
	detections, err := perception.NewZMQSource(sub, frameTimeout, logger)
	if err != nil {
		return nil, err
	}
	return detections, nil
}
