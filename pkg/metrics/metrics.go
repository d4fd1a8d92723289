package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Funnel counts funnel progress. A nil *Funnel records nothing.
type Funnel struct {
	stepViews          *prometheus.CounterVec
	stepCompletions    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	abandonments       *prometheus.CounterVec
	gateRedirects      *prometheus.CounterVec
	logins             *prometheus.CounterVec
}

// NewFunnel registers the funnel collectors on reg.
func NewFunnel(reg prometheus.Registerer) (*Funnel, error) {
	f := &Funnel{
		stepViews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "step_views_total",
			Help:      "Step pages that passed the gate",
		}, []string{"step"}),
		stepCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "step_completions_total",
			Help:      "Valid step submissions",
		}, []string{"step"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "validation_failures_total",
			Help:      "Submissions rejected by validation",
		}, []string{"form"}),
		abandonments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "abandonments_total",
			Help:      "Touched forms left before being persisted",
		}, []string{"form", "kind"}),
		gateRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "gate_redirects_total",
			Help:      "Step loads redirected to an earlier step",
		}, []string{"step", "to"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onboarding",
			Name:      "logins_total",
			Help:      "Login submissions by outcome",
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		f.stepViews, f.stepCompletions, f.validationFailures,
		f.abandonments, f.gateRedirects, f.logins,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func step(n int) string {
	if n == 0 {
		return "login"
	}
	return strconv.Itoa(n)
}

func (f *Funnel) StepViewed(n int) {
	if f == nil {
		return
	}
	f.stepViews.WithLabelValues(step(n)).Inc()
}

func (f *Funnel) StepCompleted(n int) {
	if f == nil {
		return
	}
	f.stepCompletions.WithLabelValues(step(n)).Inc()
}

// ValidationFailed counts a rejected submit; n is 0 for the login form.
func (f *Funnel) ValidationFailed(n int) {
	if f == nil {
		return
	}
	f.validationFailures.WithLabelValues(step(n)).Inc()
}

func (f *Funnel) Abandoned(n int, kind string) {
	if f == nil {
		return
	}
	f.abandonments.WithLabelValues(step(n), kind).Inc()
}

func (f *Funnel) GateRedirected(from, to int) {
	if f == nil {
		return
	}
	f.gateRedirects.WithLabelValues(step(from), step(to)).Inc()
}

func (f *Funnel) Login(outcome string) {
	if f == nil {
		return
	}
	f.logins.WithLabelValues(outcome).Inc()
}
