package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bleloop/bleloop"
	"github.com/bleloop/bleloop/internal/gox"
	"github.com/bleloop/bleloop/internal/stacksim"
	"github.com/bleloop/bleloop/stack"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the event pipeline",
	Long: `Bring up the simulated BLE stack, dispatch its events and keep running
until interrupted.

With --scenario (or a scenario path in the config file) a YAML emission
script is played against the simulator and the pipeline exits shortly
after the last step. Without one it idles until Ctrl+C, rotating
advertisement payloads when --advertise-every is set.`,
	RunE: runPipeline,
}

var (
	runScenario  string
	runDuration  time.Duration
	runAdvertise time.Duration
	runTrace     uint32
)

func init() {
	runCmd.Flags().StringVarP(&runScenario, "scenario", "s", "", "YAML scenario file to play (overrides the config file)")
	runCmd.Flags().DurationVarP(&runDuration, "duration", "d", 0, "Stop after this long (0 runs until Ctrl+C or scenario end)")
	runCmd.Flags().DurationVar(&runAdvertise, "advertise-every", 0, "Rotate advertisement payloads at this interval (0 disables)")
	runCmd.Flags().Uint32Var(&runTrace, "trace", 0, "Keep the last N dispatched events and print them on exit")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runScenario != "" {
		cfg.Scenario = runScenario
	}
	if runTrace > 0 {
		cfg.Pipeline.TraceCapacity = runTrace
	}

	var scenario *stacksim.Scenario
	if cfg.Scenario != "" {
		if scenario, err = stacksim.LoadScenario(cfg.Scenario); err != nil {
			return err
		}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	logger := cfg.NewLogger()

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
	if runAdvertise > 0 {
		name := bleloop.DeriveName(cfg.Device.Name, cfg.Device.AppName,
			cfg.Device.MACSuffix, stack.MustParseAddr(cfg.Sim.Addr))
		payloads := [][]byte{stacksim.AdvPayload(name), stacksim.AdvPayload("")}
		ctrl.RegisterLoopModule(stacksim.NewAdvertiser(sim, runAdvertise, payloads, logger))
	}

	if err := ctrl.Setup(); err != nil {
		return err
	}
	bleloop.SetDefault(ctrl)

	// Create context with timeout
	baseCtx := context.Background()
	if runDuration > 0 {
		var cancelTimeout context.CancelFunc
		baseCtx, cancelTimeout = context.WithTimeout(baseCtx, runDuration)
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

	if scenario != nil {
		gox.Go(ctx, logger, "scenario-player", func(ctx context.Context) {
			if err := scenario.Play(ctx, sim, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("Scenario playback failed")
			}
			// Let the dispatch loop drain the scenario's tail before the
			// shutdown starts.
			select {
			case <-time.After(2 * cfg.TickInterval()):
			case <-ctx.Done():
			}
			cancel()
		})
	}

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

// printSummary reports the drop count and the dispatch trace collected
// during the run.
func printSummary(w io.Writer, ctrl *bleloop.Controller) {
	if n := ctrl.DroppedEvents(); n > 0 {
		fmt.Fprintf(w, "Dropped events: %d\n", n)
	}

	trace := ctrl.TraceSnapshot()
	if len(trace) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TS(US)\tKIND\tEVENT\tIF")
	for _, e := range trace {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", e.TsUs, e.Kind, e.Event, e.If)
	}
	_ = tw.Flush()
}

// startupBanner logs the stack identity once, on the first dispatch
// pass after bring-up.
type startupBanner struct {
	ctrl *bleloop.Controller
	once sync.Once
}

func (b *startupBanner) Tick() {
	b.once.Do(b.ctrl.DumpConfig)
}

// logHandlers reports every dispatched event through the logger: the
// binary's default consumers, standing in for application handlers.
type logHandlers struct {
	log *logrus.Entry
}

func registerLogHandlers(ctrl *bleloop.Controller, logger *logrus.Logger) {
	h := &logHandlers{log: logger.WithField("module", "events")}
	ctrl.RegisterGAPHandler(h)
	ctrl.RegisterGAPScanHandler(h)
	ctrl.RegisterGATTServerHandler(h)
	ctrl.RegisterGATTClientHandler(h)
	ctrl.RegisterStatusHandler(h)
}

func (h *logHandlers) OnGAPEvent(event stack.GAPEvent, status stack.Status) {
	h.log.WithFields(logrus.Fields{"event": event, "status": status.String()}).Info("GAP event")
}

func (h *logHandlers) OnGAPScanResult(res *stack.ScanResult) {
	h.log.WithFields(logrus.Fields{
		"addr": res.Addr.String(),
		"rssi": res.RSSI,
		"name": res.LocalName(),
	}).Info("Scan result")
}

func (h *logHandlers) OnGATTServerEvent(event stack.GATTServerEvent, iface stack.GATTIf, param *stack.GATTServerParam) {
	h.log.WithFields(logrus.Fields{"event": event, "if": iface}).Info("GATT server event")
}

func (h *logHandlers) OnGATTClientEvent(event stack.GATTClientEvent, iface stack.GATTIf, param *stack.GATTClientParam) {
	h.log.WithFields(logrus.Fields{"event": event, "if": iface}).Info("GATT client event")
}

func (h *logHandlers) OnBLEBeforeDisabled() {
	h.log.Info("BLE stack going down")
}
