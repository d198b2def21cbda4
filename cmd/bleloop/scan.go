package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bleloop/bleloop"
	"github.com/bleloop/bleloop/internal/gox"
	"github.com/bleloop/bleloop/internal/stacksim"
	"github.com/bleloop/bleloop/stack"
	"github.com/bleloop/bleloop/stack/goble"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby BLE devices through the event pipeline",
	Long: `Scan opens the host BLE radio and feeds every advertisement through
the same queue and dispatch loop the simulator uses, logging each
result as it is dispatched.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAllowDup bool
	scanTrace    uint32
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "how long to scan (0 = until interrupted)")
	scanCmd.Flags().BoolVar(&scanAllowDup, "allow-dup", false, "deliver duplicate advertisements")
	scanCmd.Flags().Uint32Var(&scanTrace, "trace", 0, "record the last N dispatched events and print them on exit")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanTrace > 0 {
		cfg.Pipeline.TraceCapacity = scanTrace
	}
	// Scanning needs a running stack no matter what the file says.
	cfg.Device.EnableOnBoot = true

	cmd.SilenceUsage = true
	logger := cfg.NewLogger()

	dev, err := goble.DeviceFactory()
	if err != nil {
		return fmt.Errorf("open BLE device: %w", err)
	}

	sim, err := stacksim.New(stacksim.Options{
		Addr:        cfg.Sim.Addr,
		StatusDelay: cfg.SimStatusDelay(),
	}, logger)
	if err != nil {
		return err
	}

	ctrl, err := bleloop.New(sim, cfg.BLEConfig(), logger)
	if err != nil {
		return err
	}
	registerLogHandlers(ctrl, logger)
	ctrl.RegisterLoopModule(&startupBanner{ctrl: ctrl})

	if err := ctrl.Setup(); err != nil {
		return err
	}
	bleloop.SetDefault(ctrl)

	baseCtx := context.Background()
	if scanDuration > 0 {
		var cancelTimeout context.CancelFunc
		baseCtx, cancelTimeout = context.WithTimeout(baseCtx, scanDuration)
		defer cancelTimeout()
	}

	// Create a cancellable context for signal handling
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	gox.Go(ctx, logger, "signal-watcher", func(ctx context.Context) {
		select {
		case <-sigCh:
			logger.Info("Interrupt received, shutting down")
			cancel()
		case <-ctx.Done():
		}
	})

	// Radio results enter the pipeline through the simulated stack's
	// emit path, which keeps deliveries serialized with any other
	// producer.
	bridge := goble.NewScanBridge(dev, logger)
	gox.Go(ctx, logger, "ble-scan", func(ctx context.Context) {
		if err := bridge.Scan(ctx, scanAllowDup, func(event stack.GAPEvent, param *stack.GAPParam) {
			sim.EmitGAP(event, param)
		}); err != nil {
			logger.WithError(err).Error("Scan failed")
		}
		// Let the dispatch loop drain the final completion before the
		// shutdown starts.
		select {
		case <-time.After(2 * cfg.TickInterval()):
		case <-ctx.Done():
		}
		cancel()
	})

	runErr := ctrl.Run(ctx, cfg.TickInterval())

	// Orderly tear-down on the goroutine Run ticked on, so status
	// handlers observe the shutdown.
	if !ctrl.IsFailed() {
		ctrl.Disable()
		ctrl.Tick()
	}

	printSummary(os.Stdout, ctrl)

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	return nil
}
