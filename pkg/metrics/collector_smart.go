package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/diskwarden/diskwarden/pkg/smart"
)

var _ prometheus.Collector = &SMARTCollector{}

// smartScrapeTimeout bounds one whole scrape, not one device probe.
const smartScrapeTimeout = time.Minute

// DeviceSource lists the device paths a scrape should probe.
type DeviceSource func(ctx context.Context) ([]string, error)

// SMARTCollector probes device health on every scrape, so the verdict
// on /metrics is as fresh as the last pull. Devices without a verdict
// are left out of the exposition instead of being reported unhealthy.
type SMARTCollector struct {
	devices DeviceSource
	prober  smart.Prober
	healthy *prometheus.Desc
}

// NewSMARTCollector collects SMART health metrics through smartctl.
func NewSMARTCollector(devices DeviceSource, prober smart.Prober) *SMARTCollector {
	return &SMARTCollector{
		devices: devices,
		prober:  prober,
		healthy: prometheus.NewDesc(
			"diskwarden_disk_smart_healthy",
			"SMART overall health verdict of a device, 1 passed, 0 failing.",
			[]string{"device"}, nil),
	}
}

func (sc *SMARTCollector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(sc, ch)
}

func (sc *SMARTCollector) Collect(ch chan<- prometheus.Metric) {
	log.Debug("Collecting metrics for S.M.A.R.T")
	ctx, cancel := context.WithTimeout(context.Background(), smartScrapeTimeout)
	defer cancel()

	devices, err := sc.devices(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list devices for S.M.A.R.T metrics")
		return
	}

	for _, dev := range devices {
		passed, err := sc.prober.HealthStatus(ctx, dev)
		if err != nil {
			log.WithError(err).WithField("device", dev).Debug("No S.M.A.R.T verdict for device")
			continue
		}
		value := 0.0
		if passed {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(sc.healthy, prometheus.GaugeValue, value, dev)
	}
}
