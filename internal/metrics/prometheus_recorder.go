package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	schedules     *prom.CounterVec
	cancels       prom.Counter
	nextAlarm     prom.Gauge
	triggers      *prom.CounterVec
	outcomes      *prom.CounterVec
	ringDuration  prom.Histogram
	sessionActive prom.Gauge
}

// NewPrometheusRecorder constructs the alarm metrics and registers them with reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		schedules: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "alarmd",
			Name:      "schedule_total",
			Help:      "Wake-up registration attempts by result",
		}, []string{"result"}),
		cancels: prom.NewCounter(prom.CounterOpts{
			Namespace: "alarmd",
			Name:      "cancel_total",
			Help:      "Wake-up cancellations",
		}),
		nextAlarm: prom.NewGauge(prom.GaugeOpts{
			Namespace: "alarmd",
			Name:      "next_alarm_timestamp_seconds",
			Help:      "Unix time of the next outstanding wake-up, 0 when none",
		}),
		triggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "alarmd",
			Name:      "trigger_total",
			Help:      "Delivered triggers by dispatch result",
		}, []string{"result"}),
		outcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "alarmd",
			Name:      "session_outcome_total",
			Help:      "Ended ringing sessions by outcome",
		}, []string{"outcome"}),
		ringDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "alarmd",
			Name:      "ring_duration_seconds",
			Help:      "Time from ringing start to session end",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		sessionActive: prom.NewGauge(prom.GaugeOpts{
			Namespace: "alarmd",
			Name:      "session_active",
			Help:      "1 while an alarm is ringing",
		}),
	}
	reg.MustRegister(pr.schedules, pr.cancels, pr.nextAlarm, pr.triggers, pr.outcomes, pr.ringDuration, pr.sessionActive)
	return pr
}

func (p *PrometheusRecorder) IncSchedule(result ResultLabel) {
	if p == nil {
		return
	}
	p.schedules.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncCancel() {
	if p == nil {
		return
	}
	p.cancels.Inc()
}

func (p *PrometheusRecorder) SetNextAlarm(at time.Time) {
	if p == nil {
		return
	}
	if at.IsZero() {
		p.nextAlarm.Set(0)
		return
	}
	p.nextAlarm.Set(float64(at.Unix()))
}

func (p *PrometheusRecorder) IncTrigger(result ResultLabel) {
	if p == nil {
		return
	}
	p.triggers.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncSessionOutcome(outcome string) {
	if p == nil {
		return
	}
	p.outcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveRingDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.ringDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetSessionActive(active bool) {
	if p == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	p.sessionActive.Set(v)
}
