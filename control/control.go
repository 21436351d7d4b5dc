// control/control.go
// Author: momentics <momentics@gmail.com>
//
// Combined api.Control implementation over the config, metrics, and probe
// primitives.

package control

import "github.com/momentics/hioload-timer/api"

// Controller aggregates config, metrics and debug probes behind api.Control.
type Controller struct {
	config  *ConfigStore
	metrics *MetricsRegistry
	debug   *DebugProbes
}

// Ensure compile-time interface compliance.
var _ api.Control = (*Controller)(nil)

// NewController creates an empty control surface.
func NewController() *Controller {
	return &Controller{
		config:  NewConfigStore(),
		metrics: NewMetricsRegistry(),
		debug:   NewDebugProbes(),
	}
}

func (c *Controller) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

func (c *Controller) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Stats merges metric samples with debug probe output.
func (c *Controller) Stats() map[string]any {
	combined := c.metrics.GetSnapshot()
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

func (c *Controller) OnReload(fn func()) {
	c.config.OnReload(fn)
}

// SetMetric records a push-style metric value.
func (c *Controller) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}

// AddMetricsSource registers a pull-based metrics producer.
func (c *Controller) AddMetricsSource(fn func() map[string]any) {
	c.metrics.AddSource(fn)
}

func (c *Controller) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
