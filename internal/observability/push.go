package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "cloud_pocket_pipeline"

// Push sends the current metric values to a Prometheus Pushgateway, grouped
// by experiment.
func (m *Metrics) Push(ctx context.Context, url, experiment string) error {
	p := push.New(url, pushJob).Grouping("experiment", experiment)
	for _, c := range m.collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
