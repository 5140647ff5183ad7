package metrics

import (
	"time"

	"github.com/cuemby/keg/pkg/localcdn"
)

// Collector periodically samples the local object store and publishes its
// presence counts as gauges.
type Collector struct {
	local  *localcdn.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over local.
func NewCollector(local *localcdn.Store) *Collector {
	return &Collector{
		local:  local,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	stats := c.local.Stats()
	for kind, count := range stats {
		if kind == "fragments" {
			FragmentsQuarantinedTotal.Set(float64(count))
			continue
		}
		ObjectsPresentTotal.WithLabelValues(kind).Set(float64(count))
	}
}
