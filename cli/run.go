package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/meridian-quant/flowcore/eventbus"
	"github.com/meridian-quant/flowcore/pipeline/config"
	"github.com/meridian-quant/flowcore/pipeline/coordinator"
	"github.com/meridian-quant/flowcore/pipeline/envelope"
	"github.com/meridian-quant/flowcore/pipeline/initiator"
	"github.com/meridian-quant/flowcore/pipeline/observability"
	"github.com/meridian-quant/flowcore/pipeline/planning"
	"github.com/meridian-quant/flowcore/pipeline/timer"
	"github.com/meridian-quant/flowcore/pipeline/translator"
)

// NewRunCommand builds the run subcommand.
func NewRunCommand() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision pipeline",
		Long: `Start the full pipeline: lifecycle coordinator, flow initiators,
planning specialists, phase coordinator, intent translator and the
scheduled task service. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), configPath, metricsAddr)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flowcore.yaml", "pipeline configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")

	return cmd
}

func runPipeline(parent context.Context, configPath, metricsAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := NewLogger(cfg.Observability.LogLevel)
	for _, warning := range warnings {
		logger.Warn("config_warning", "detail", warning)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracer(cfg.Observability.OTLPEndpoint, observability.TracerOptions{
			ServiceName: "flowcore",
			Version:     Version,
			Environment: cfg.Environment,
			SampleRatio: cfg.Observability.TraceSampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				logger.Error("tracer_shutdown_failed", "error", err.Error())
			}
		}()
	}

	bus := eventbus.NewInMemoryBus(logger)
	bus.AddMiddleware(eventbus.NewLoggingMiddleware(logger))
	if len(cfg.Wiring.Deprecated) > 0 {
		bus.AddMiddleware(eventbus.NewDeprecatedSignalMiddleware(cfg.Wiring.Deprecated, logger))
	}

	coord := coordinator.New(coordinator.Config{
		QueueCapacity: cfg.Coordinator.QueueCapacity,
		RetryDelay:    cfg.Coordinator.RetryDelay.Std(),
		FlowTimeout:   cfg.Coordinator.FlowTimeout.Std(),
	}, bus, logger, func(flowID envelope.FlowID, reason envelope.TerminalReason) {
		logger.Error("flow_forced_terminal", "flow_id", string(flowID), "reason", string(reason))
	})

	targets := cfg.Wiring.Targets()
	if err := registerInitiators(bus, logger, cfg, targets); err != nil {
		return err
	}
	if err := registerPlanning(bus, logger, cfg, targets); err != nil {
		return err
	}

	phase := planning.NewPhaseCoordinator(bus, logger)
	if targets[config.TargetPhaseCoordinator] {
		phase.Start()
		defer phase.Stop()
	}

	dispatcher, err := buildDispatcher(bus, logger, cfg)
	if err != nil {
		return err
	}
	if targets[config.TargetDispatcher] {
		dispatcher.Start()
		defer dispatcher.Stop()
	}

	if err := coord.Start(ctx); err != nil {
		return err
	}

	if err := verifyWiring(bus, cfg.Wiring); err != nil {
		return fmt.Errorf("wiring verification: %w", err)
	}

	store, err := timer.NewSQLiteStore(cfg.Timer.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := timer.NewService(store, coord.Submit, logger, cfg.Timer.PollInterval.Std())
	if err != nil {
		return err
	}
	if err := service.Start(ctx); err != nil {
		return err
	}
	defer service.Stop()

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	logger.Info("pipeline_started",
		"environment", cfg.Environment,
		"queue_capacity", cfg.Coordinator.QueueCapacity,
		"flow_timeout", cfg.Coordinator.FlowTimeout.String())

	<-ctx.Done()
	logger.Info("pipeline_stopping")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Coordinator.FlowTimeout.Std())
	defer cancel()
	if err := coord.Shutdown(drainCtx); err != nil {
		logger.Error("coordinator_shutdown_failed", "error", err.Error())
	}
	return nil
}

func registerInitiators(bus eventbus.Bus, logger eventbus.Logger, cfg *config.Config, targets map[string]bool) error {
	var inits []initiator.Initiator
	if targets[config.TargetTickInitiator] {
		inits = append(inits, initiator.NewTickWindowInitiator(cfg.Initiators.TickWindowSize))
	}
	if targets[config.TargetNewsInitiator] {
		inits = append(inits, initiator.NewNewsFilterInitiator(cfg.Initiators.NewsKeywords))
	}
	if targets[config.TargetScheduleInitiator] {
		inits = append(inits, initiator.NewScheduledTaskInitiator())
	}
	if targets[config.TargetCommandInitiator] {
		inits = append(inits, initiator.NewUserCommandInitiator())
	}

	if err := initiator.ValidateExclusive(inits...); err != nil {
		return fmt.Errorf("initiator wiring: %w", err)
	}
	for _, init := range inits {
		initiator.Register(bus, logger, init)
	}
	return nil
}

func registerPlanning(bus eventbus.Bus, logger eventbus.Logger, cfg *config.Config, targets map[string]bool) error {
	if targets[config.TargetEntrySpecialist] {
		planning.RegisterSpecialist(bus, logger, planning.NewEntrySpecialist(), cfg.Gate(envelope.AspectEntry))
	}
	if targets[config.TargetSizeSpecialist] {
		capital, err := decimal.NewFromString(cfg.Planning.Capital)
		if err != nil {
			return fmt.Errorf("parse capital %q: %w", cfg.Planning.Capital, err)
		}
		planning.RegisterSpecialist(bus, logger, planning.NewSizeSpecialist(capital), cfg.Gate(envelope.AspectSize))
	}
	if targets[config.TargetExitSpecialist] {
		planning.RegisterSpecialist(bus, logger, planning.NewExitSpecialist(), cfg.Gate(envelope.AspectExit))
	}
	if targets[config.TargetIntentSpecialist] {
		planning.RegisterIntentSpecialist(bus, logger, planning.NewIntentSpecialist(
			cfg.Planning.ImmediateAbove,
			cfg.Planning.PatientBelow,
			cfg.Planning.PatientWindow.Std()))
	}
	return nil
}

func buildDispatcher(bus eventbus.Bus, logger eventbus.Logger, cfg *config.Config) (*translator.Dispatcher, error) {
	registry, err := translator.NewRegistry(
		translator.NewSimulatedTranslator(),
		translator.NewCentralizedTranslator(),
		translator.NewDecentralizedTranslator(),
	)
	if err != nil {
		return nil, err
	}
	tr, err := registry.Lookup(translator.Environment(cfg.Environment))
	if err != nil {
		return nil, err
	}
	return translator.NewDispatcher(bus, logger, tr, translator.NewVirtualFillSink(bus, logger)), nil
}

// verifyWiring checks that every routed signal ended up with a live
// subscriber once all components registered. A route whose target was
// disabled would otherwise drop its traffic silently.
func verifyWiring(bus eventbus.Bus, wiring config.WiringConfig) error {
	for _, route := range wiring.Routes {
		if !bus.HasSubscribers(route.Signal) {
			return eventbus.NewNoSubscriberError(route.Signal)
		}
	}
	return nil
}

func serveMetrics(addr string, logger eventbus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics_listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics_server_failed", "error", err.Error())
		os.Exit(1)
	}
}
