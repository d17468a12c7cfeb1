package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RetransmitRequests.WithLabelValues("s1", "sender").Inc()
	m.PacketsLost.WithLabelValues("s1").Add(5)
	m.AEADFailures.WithLabelValues("s1", "audio").Inc()
	m.QueueDepth.WithLabelValues("s1", "audio").Set(42)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var found int
	for _, fam := range families {
		switch fam.GetName() {
		case "airplay_retransmit_requests_total", "airplay_packets_lost_total",
			"airplay_aead_failures_total", "airplay_queue_depth":
			found++
		}
	}
	require.Equal(t, 4, found)
}

func TestQueueDepthGaugeReflectsLastSet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.QueueDepth.WithLabelValues("s1", "control").Set(7)

	families, err := reg.Gather()
	require.NoError(t, err)
	var metric *dto.Metric
	for _, fam := range families {
		if fam.GetName() == "airplay_queue_depth" {
			metric = fam.Metric[0]
		}
	}
	require.NotNil(t, metric)
	require.Equal(t, 7.0, metric.GetGauge().GetValue())
}
