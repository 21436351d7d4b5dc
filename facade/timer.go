// File: facade/timer.go
// Unified facade layer for hioload-timer library.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the TimerSystem struct, which aggregates the core
// components of the hioload-timer library behind a single facade: the
// hashed-wheel driver, the lock-free op ring feeding it, the monotonic
// clock source, and the control interface for metrics and debug probes.
// The facade exposes methods to start/stop the system and to schedule,
// cancel, and reset timeouts from any goroutine.

package facade

import (
	"log"
	"sync"
	"time"

	"github.com/momentics/hioload-timer/api"
	"github.com/momentics/hioload-timer/clock"
	"github.com/momentics/hioload-timer/control"
	"github.com/momentics/hioload-timer/sched"
)

// Config holds parameters immutable per run.
type Config struct {
	TickDuration  time.Duration // Wheel granularity; precision/overhead trade-off
	WheelSize     int           // Slots per revolution before rounds-deferral kicks in
	QueueCapacity int           // Op ring capacity; producer backpressure threshold
	MaxTimers     int           // Arena capacity: max concurrently scheduled timeouts
	MaxCatchUp    int           // Tick-advance budget per pass after a stall
	Resume        api.Resumer   // External executor hook for fired continuations
	Clock         api.Clock     // Monotonic source override, mainly for tests
	EnableMetrics bool          // Whether to publish driver counters via Control
	EnableDebug   bool          // Whether to register debug probes
}

// DefaultConfig returns default configuration values.
// These sane defaults support typical use cases without extensive tuning.
func DefaultConfig() *Config {
	return &Config{
		TickDuration:  10 * time.Millisecond, // ~5s single revolution at 512 slots
		WheelSize:     512,
		QueueCapacity: 1024,
		MaxTimers:     65536,
		MaxCatchUp:    1024,
		EnableMetrics: true,
		EnableDebug:   true,
	}
}

// TimerSystem is the main facade type.
// It implements api.GracefulShutdown to allow unified shutdown logic.
type TimerSystem struct {
	driver  *sched.Driver
	control *control.Controller
	config  *Config

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*TimerSystem)(nil)

// New constructs a TimerSystem with the given configuration. The driver
// goroutine is not launched until Start.
func New(cfg *Config) (*TimerSystem, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TickDuration < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "tick duration must not be negative").
			WithContext("tick_duration", cfg.TickDuration)
	}
	if cfg.WheelSize < 0 || cfg.QueueCapacity < 0 || cfg.MaxTimers < 0 || cfg.MaxCatchUp < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "sizing values must not be negative").
			WithContext("wheel_size", cfg.WheelSize).
			WithContext("queue_capacity", cfg.QueueCapacity).
			WithContext("max_timers", cfg.MaxTimers).
			WithContext("max_catch_up", cfg.MaxCatchUp)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMonotonic()
	}

	ts := &TimerSystem{config: cfg, control: control.NewController()}
	ts.driver = sched.NewDriver(sched.Config{
		TickDuration:  cfg.TickDuration,
		WheelSize:     cfg.WheelSize,
		QueueCapacity: cfg.QueueCapacity,
		MaxTimers:     cfg.MaxTimers,
		MaxCatchUp:    cfg.MaxCatchUp,
		Clock:         cfg.Clock,
		Resume:        cfg.Resume,
	})

	ts.control.SetConfig(map[string]any{
		"tick_duration":  ts.driver.TickDuration().String(),
		"wheel_size":     cfg.WheelSize,
		"queue_capacity": cfg.QueueCapacity,
		"max_timers":     cfg.MaxTimers,
		"max_catch_up":   cfg.MaxCatchUp,
	})
	if cfg.EnableMetrics {
		ts.control.AddMetricsSource(ts.driver.Stats)
	}
	if cfg.EnableDebug {
		ts.control.RegisterDebugProbe("timer_stats", func() any { return ts.driver.Stats() })
	}
	return ts, nil
}

// Start launches the driver goroutine. Subsequent calls have no effect.
func (ts *TimerSystem) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.stopped {
		return api.ErrStopped
	}
	if ts.started {
		return nil
	}
	go ts.driver.Run()
	ts.started = true
	return nil
}

// Stop tears the driver down. Every still-scheduled handle completes with
// ErrShutdown. Calling Stop on a non-started facade is a no-op.
func (ts *TimerSystem) Stop() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.started || ts.stopped {
		return nil
	}
	ts.driver.Stop()
	ts.stopped = true
	if killed, ok := ts.driver.Stats()["timer.shutdown_killed"].(uint64); ok && killed > 0 {
		log.Printf("[facade] timer shutdown cancelled %d scheduled timeouts", killed)
	}
	return nil
}

// Shutdown implements api.GracefulShutdown by delegating to Stop().
func (ts *TimerSystem) Shutdown() error {
	return ts.Stop()
}

// Schedule registers a timeout of duration d and returns its handle.
// Callable from any goroutine; never blocks. After Stop it fails with
// ErrStopped.
func (ts *TimerSystem) Schedule(d time.Duration) (*sched.Handle, error) {
	ts.mu.RLock()
	stopped := ts.stopped
	ts.mu.RUnlock()
	if stopped {
		return nil, api.ErrStopped
	}
	return ts.driver.Schedule(d), nil
}

// ScheduleInterval starts a recurring notification with period d. The
// returned interval ends on Stop or when the timer system shuts down.
func (ts *TimerSystem) ScheduleInterval(d time.Duration) (*sched.Interval, error) {
	ts.mu.RLock()
	stopped := ts.stopped
	ts.mu.RUnlock()
	if stopped {
		return nil, api.ErrStopped
	}
	return ts.driver.NewInterval(d)
}

// GetControl returns the Control interface for config, metrics and probes.
func (ts *TimerSystem) GetControl() api.Control {
	return ts.control
}

// GetDriver exposes the underlying driver, mainly for integration tests
// and advanced embedding.
func (ts *TimerSystem) GetDriver() *sched.Driver {
	return ts.driver
}
