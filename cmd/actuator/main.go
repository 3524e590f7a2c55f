package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/open-teleop/pantilt/domain/actuation"
	"github.com/open-teleop/pantilt/pkg/api"
	"github.com/open-teleop/pantilt/pkg/config"
	"github.com/open-teleop/pantilt/pkg/hardware"
	customlog "github.com/open-teleop/pantilt/pkg/log"
	"github.com/open-teleop/pantilt/pkg/motion"
	"github.com/open-teleop/pantilt/pkg/protocol"
	"github.com/open-teleop/pantilt/pkg/zeromq"
	"github.com/open-teleop/pantilt/services"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "actuator",
		Short:        "Pan-tilt actuation node: servo commands in, smooth hardware motion out",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/actuator.yaml", "Path to the bootstrap configuration file")

	rootCmd.AddCommand(serveCmd(), centerCmd(), waveCmd(), sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// node is the hardware side shared by every subcommand.
type node struct {
	bootstrap *config.BootstrapConfig
	logger    customlog.Logger
	units     []config.UnitConfig
	driver    hardware.Driver
	smooth    *motion.SmoothDriver
}

func openNode() (*node, error) {
	bootstrapCfg, err := config.LoadBootstrapConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath, "actuator")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rigCfg, err := config.LoadConfig(bootstrapCfg.RigConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load rig configuration: %w", err)
	}

	units, rejected := rigCfg.PartitionUnits()
	for _, e := range rejected {
		logger.Errorf("Excluding pan-tilt unit: %v", e)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no valid pan-tilt units in %s", bootstrapCfg.RigConfigPath())
	}

	servos := hardware.ServoKeys(units)
	driver, err := hardware.NewDriver(rigCfg.Hardware, servos, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s driver: %w", rigCfg.Hardware.Driver, err)
	}
	logger.Infof("Initialized %s driver with %d servos across %d units", rigCfg.Hardware.Driver, len(servos), len(units))

	state := motion.NewState(driver.Servos())
	return &node{
		bootstrap: bootstrapCfg,
		logger:    logger,
		units:     units,
		driver:    driver,
		smooth:    motion.NewSmoothDriver(driver, state, rigCfg.Motion, logger),
	}, nil
}

func (n *node) Close() {
	if err := n.driver.Close(); err != nil {
		n.logger.Errorf("Failed to release servo driver: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Subscribe to the control topic and drive the servos",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode()
			if err != nil {
				return err
			}
			defer n.Close()
			return serve(n)
		},
	}
}

func serve(n *node) error {
	logger := n.logger
	zmqCfg := n.bootstrap.ZeroMQ

	codec, err := protocol.NewCodec(zmqCfg.Codec)
	if err != nil {
		return err
	}

	worker := motion.NewWorker("motion", n.smooth, logger)
	broadcaster := api.NewBroadcaster()
	worker.SetResultHandler(func(result motion.Result) {
		broadcaster.Broadcast(api.EventMotion, result)
	})
	worker.Start()
	defer worker.Stop()

	zmqService, err := zeromq.NewZeroMQService(logger)
	if err != nil {
		return fmt.Errorf("failed to create ZeroMQ service: %w", err)
	}
	defer zmqService.Close()

	subscriber, err := zmqService.NewSubscriber(zeromq.Endpoint{
		Address:           zmqCfg.Endpoint,
		Bind:              zmqCfg.Bind,
		HighWaterMark:     zmqCfg.MessageBufferSize,
		ReconnectInterval: zmqCfg.ReconnectInterval(),
	}, zmqCfg.Topic)
	if err != nil {
		return fmt.Errorf("failed to open control subscriber: %w", err)
	}

	dispatcher := actuation.NewDispatcher(codec, worker, logger)
	if err := subscriber.Start(dispatcher.HandleMessage); err != nil {
		return fmt.Errorf("failed to start control subscriber: %w", err)
	}
	defer subscriber.Stop()
	logger.Infof("Listening for %s commands on '%s'", codec.Name(), zmqCfg.Topic)

	if port := n.bootstrap.Server.HTTPPort; port > 0 {
		motionService := actuation.NewMotionService(n.smooth.State(), worker)

		app := api.NewServer("pantilt actuator", broadcaster, logger)
		app.Get("/api/status", dispatcher.StatusHandler)
		app.Get("/api/servos", motionService.ServosHandler)
		app.Get("/api/metrics", motionService.MetricsHandler)
		app.Get("/api/transport", func(c *fiber.Ctx) error {
			received, dropped := subscriber.Stats()
			return c.JSON(fiber.Map{
				"status":   "success",
				"topic":    zmqCfg.Topic,
				"codec":    codec.Name(),
				"received": received,
				"dropped":  dropped,
			})
		})
		if cfgService, err := services.NewRigConfigService(n.bootstrap.RigConfigPath(), logger); err == nil {
			api.RegisterConfigRoutes(app, cfgService, logger)
		}
		api.Start(app, port, logger)
		defer api.Shutdown(app, 5*time.Second, logger)
	}

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	logger.Infof("Shutting down actuator...")
	return nil
}

func centerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "center",
		Short: "Move every configured servo to 90 degrees",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode()
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, stop := signalContext()
			defer stop()

			result, err := motion.Center(ctx, n.smooth, n.smooth.State().Servos())
			if err != nil {
				return err
			}
			n.logger.Infof("Centered %d servos in %d steps (%d failed)", len(result.Targets), result.Steps, len(result.Failed))
			return nil
		},
	}
}

func waveCmd() *cobra.Command {
	params := motion.DefaultWaveParams
	var axis string

	cmd := &cobra.Command{
		Use:   "wave",
		Short: "Run a sinusoidal wave across the pan and/or tilt servos, then re-center",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode()
			if err != nil {
				return err
			}
			defer n.Close()

			pan, tilt := motion.Axes(n.units)
			var servos []protocol.ServoKey
			switch axis {
			case "pan":
				servos = pan
			case "tilt":
				servos = tilt
			case "both":
				servos = append(append([]protocol.ServoKey{}, pan...), tilt...)
			default:
				return fmt.Errorf("--axis must be pan, tilt or both, got '%s'", axis)
			}

			ctx, stop := signalContext()
			defer stop()

			n.logger.Infof("Waving %d servos: amplitude %.1f°, %.2f Hz for %v", len(servos), params.Amplitude, params.Frequency, params.Duration)
			return motion.Interruptible(ctx, n.smooth, servos, func(ctx context.Context) error {
				return motion.Wave(ctx, n.smooth, servos, params)
			})
		},
	}
	cmd.Flags().StringVar(&axis, "axis", "both", "Servo group to wave: pan, tilt or both")
	cmd.Flags().Float64Var(&params.Amplitude, "amplitude", params.Amplitude, "Wave amplitude in degrees around center")
	cmd.Flags().Float64Var(&params.Frequency, "frequency", params.Frequency, "Wave frequency in Hz")
	cmd.Flags().Float64Var(&params.PhaseOffset, "phase", params.PhaseOffset, "Phase offset between neighbouring servos in radians")
	cmd.Flags().DurationVar(&params.Duration, "duration", params.Duration, "How long to wave")
	return cmd
}

func sweepCmd() *cobra.Command {
	params := motion.DefaultSweepParams

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep all units between left-down and right-up",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode()
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, stop := signalContext()
			defer stop()

			pan, tilt := motion.Axes(n.units)
			all := append(append([]protocol.ServoKey{}, pan...), tilt...)
			n.logger.Infof("Sweeping %d units by ±%.1f° for %v", len(n.units), params.Amplitude, params.Duration)
			return motion.Interruptible(ctx, n.smooth, all, func(ctx context.Context) error {
				if err := motion.Sweep(ctx, n.smooth, pan, tilt, params); err != nil {
					return err
				}
				_, err := motion.Center(ctx, n.smooth, all)
				return err
			})
		},
	}
	cmd.Flags().Float64Var(&params.Amplitude, "amplitude", params.Amplitude, "Sweep amplitude in degrees around center")
	cmd.Flags().DurationVar(&params.Duration, "duration", params.Duration, "How long to sweep")
	return cmd
}
