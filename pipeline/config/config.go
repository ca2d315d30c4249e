package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridian-quant/flowcore/pipeline/envelope"
	"github.com/meridian-quant/flowcore/pipeline/planning"
	"github.com/meridian-quant/flowcore/pipeline/translator"
)

// =============================================================================
// PIPELINE CONFIGURATION
// =============================================================================

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// CoordinatorConfig tunes the lifecycle coordinator.
type CoordinatorConfig struct {
	// QueueCapacity bounds the stimulus queue.
	QueueCapacity int `yaml:"queue_capacity"`
	// FlowTimeout is how long a flow may run before the watchdog fails it.
	FlowTimeout Duration `yaml:"flow_timeout"`
	// RetryDelay is the re-poll delay while a flow is in-flight.
	RetryDelay Duration `yaml:"retry_delay"`
}

// InitiatorConfig tunes the flow initiators.
type InitiatorConfig struct {
	// TickWindowSize is how many ticks warm the tick window before flows
	// start.
	TickWindowSize int `yaml:"tick_window_size"`
	// NewsKeywords gates news stimuli; empty means every headline starts
	// a flow.
	NewsKeywords []string `yaml:"news_keywords"`
}

// GateConfig is one specialist's confidence admission range.
type GateConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// PlanningConfig tunes the planning specialists.
type PlanningConfig struct {
	// Gates maps aspect name (entry, size, exit) to its confidence range.
	Gates map[string]GateConfig `yaml:"gates"`
	// Capital is the account capital the size specialist budgets from.
	Capital string `yaml:"capital"`
	// ImmediateAbove is the confidence at or above which intents are
	// immediate.
	ImmediateAbove float64 `yaml:"immediate_above"`
	// PatientBelow is the confidence below which intents are patient.
	PatientBelow float64 `yaml:"patient_below"`
	// PatientWindow bounds patient execution.
	PatientWindow Duration `yaml:"patient_window"`
}

// TimerConfig tunes the scheduled task service.
type TimerConfig struct {
	// DBPath locates the task store; ":memory:" keeps it ephemeral.
	DBPath string `yaml:"db_path"`
	// PollInterval is the store poll cadence.
	PollInterval Duration `yaml:"poll_interval"`
}

// ObservabilityConfig tunes logging and tracing.
type ObservabilityConfig struct {
	// LogLevel is the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// OTLPEndpoint is the trace collector address; empty disables tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// TraceSampleRatio in (0,1] enables ratio-based sampling; 1 (the
	// default) samples every trace.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// Config is the full pipeline configuration.
type Config struct {
	// Environment selects the intent translator (simulated, centralized,
	// decentralized).
	Environment   string              `yaml:"environment"`
	Coordinator   CoordinatorConfig   `yaml:"coordinator"`
	Initiators    InitiatorConfig     `yaml:"initiators"`
	Planning      PlanningConfig      `yaml:"planning"`
	Timer         TimerConfig         `yaml:"timer"`
	Observability ObservabilityConfig `yaml:"observability"`
	Wiring        WiringConfig        `yaml:"wiring"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Environment: string(translator.EnvSimulated),
		Coordinator: CoordinatorConfig{
			QueueCapacity: 1024,
			FlowTimeout:   Duration(30 * time.Second),
			RetryDelay:    Duration(5 * time.Millisecond),
		},
		Initiators: InitiatorConfig{
			TickWindowSize: 20,
		},
		Planning: PlanningConfig{
			Gates: map[string]GateConfig{
				string(envelope.AspectEntry): {Min: 0.0, Max: 1.0},
				string(envelope.AspectSize):  {Min: 0.0, Max: 1.0},
				string(envelope.AspectExit):  {Min: 0.0, Max: 1.0},
			},
			Capital:        "100000",
			ImmediateAbove: 0.9,
			PatientBelow:   0.4,
			PatientWindow:  Duration(5 * time.Minute),
		},
		Timer: TimerConfig{
			DBPath:       ".flowcore/tasks.db",
			PollInterval: Duration(time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:         "info",
			TraceSampleRatio: 1,
		},
		Wiring: DefaultWiring(),
	}
}

// Load reads the configuration at path, layered over defaults. A missing
// file returns the defaults without error; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration is runnable. It returns the fatal
// error, if any, plus non-fatal warnings (overlapping gates and the like)
// for the caller to surface.
func (c *Config) Validate() (warnings []string, err error) {
	if !translator.Environment(c.Environment).Valid() {
		return nil, fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.Coordinator.QueueCapacity < 1 {
		return nil, fmt.Errorf("queue capacity must be at least 1, got %d", c.Coordinator.QueueCapacity)
	}
	if c.Coordinator.FlowTimeout <= 0 {
		return nil, fmt.Errorf("flow timeout must be positive, got %s", c.Coordinator.FlowTimeout)
	}
	if c.Coordinator.RetryDelay <= 0 {
		return nil, fmt.Errorf("retry delay must be positive, got %s", c.Coordinator.RetryDelay)
	}

	if c.Initiators.TickWindowSize < 1 {
		return nil, fmt.Errorf("tick window size must be at least 1, got %d", c.Initiators.TickWindowSize)
	}

	gateWarnings, err := c.validateGates()
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, gateWarnings...)

	if c.Planning.ImmediateAbove < c.Planning.PatientBelow {
		return nil, fmt.Errorf("immediate_above (%.2f) must not be below patient_below (%.2f)",
			c.Planning.ImmediateAbove, c.Planning.PatientBelow)
	}
	if c.Planning.PatientWindow <= 0 {
		return nil, fmt.Errorf("patient window must be positive, got %s", c.Planning.PatientWindow)
	}

	if c.Timer.PollInterval <= 0 {
		return nil, fmt.Errorf("timer poll interval must be positive, got %s", c.Timer.PollInterval)
	}
	if c.Timer.DBPath == "" {
		return nil, fmt.Errorf("timer db path must not be empty")
	}

	if err := c.Wiring.Validate(); err != nil {
		return nil, err
	}
	return warnings, nil
}

func (c *Config) validateGates() ([]string, error) {
	for _, aspect := range envelope.ParallelAspects {
		if _, ok := c.Planning.Gates[string(aspect)]; !ok {
			return nil, fmt.Errorf("missing confidence gate for aspect %q", aspect)
		}
	}

	gates := map[envelope.Aspect]planning.RangeGate{}
	for name, gc := range c.Planning.Gates {
		aspect := envelope.Aspect(name)
		known := false
		for _, a := range envelope.ParallelAspects {
			if a == aspect {
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("confidence gate for unknown aspect %q", name)
		}
		gate := planning.RangeGate{Min: gc.Min, Max: gc.Max}
		if err := gate.Validate(); err != nil {
			return nil, fmt.Errorf("gate for aspect %q: %w", name, err)
		}
		gates[aspect] = gate
	}

	// Overlap between specialists is legal (both plan) but worth flagging.
	var warnings []string
	for i, a := range envelope.ParallelAspects {
		for _, b := range envelope.ParallelAspects[i+1:] {
			if gates[a].Overlaps(gates[b]) {
				warnings = append(warnings,
					fmt.Sprintf("confidence gates overlap: %s %s and %s %s",
						a, gates[a], b, gates[b]))
			}
		}
	}
	return warnings, nil
}

// Gate returns the configured range gate for one aspect. Call only after
// Validate.
func (c *Config) Gate(aspect envelope.Aspect) planning.RangeGate {
	gc := c.Planning.Gates[string(aspect)]
	return planning.RangeGate{Min: gc.Min, Max: gc.Max}
}
