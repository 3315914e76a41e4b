package app

import (
	"github.com/ent0n29/tutor/internal/observability"
	"github.com/ent0n29/tutor/internal/reliability"
	"github.com/ent0n29/tutor/internal/tutor"
)

// submitObserver folds tutor submit reports into Prometheus metrics and the
// rolling stage window.
type submitObserver struct {
	metrics        *observability.Metrics
	stages         *observability.StageWindow
	modelProvider  string
	speechProvider string
}

func (o *submitObserver) SubmitFinished(r tutor.Report) {
	kind := string(r.Mode.Kind)
	outcome := string(r.Outcome)
	if outcome == "" {
		outcome = "canceled"
	}
	o.metrics.Submits.WithLabelValues(kind, outcome).Inc()

	if r.Compose > 0 {
		o.stages.Observe(observability.StageCompose, r.Compose)
	}
	if r.Model > 0 {
		o.metrics.ObserveModelLatency(kind, r.Model)
		o.stages.Observe(observability.StageModel, r.Model)
	}
	if r.ModelErr != nil {
		code, _ := reliability.Classify(r.ModelErr)
		o.metrics.ProviderErrors.WithLabelValues(o.modelProvider, code).Inc()
		o.stages.ObserveIndicator("model_failed")
	}
	if r.Synthesized {
		o.metrics.ObserveSynthesisLatency(r.Synthesis)
		o.stages.Observe(observability.StageSynthesis, r.Synthesis)
		if r.AudioErr != nil {
			code, _ := reliability.Classify(r.AudioErr)
			o.metrics.ProviderErrors.WithLabelValues(o.speechProvider, code).Inc()
			o.stages.ObserveIndicator("synthesis_failed")
		}
	}
	if r.Outcome == tutor.OutcomeOK {
		o.stages.Observe(observability.StageTotal, r.Total)
	}
}
