package transcript

import (
	"context"

	"github.com/ent0n29/tutor/internal/tutor"
)

// Recorder adapts a Sink to tutor.Recorder, redacting every text field
// before it is stored.
type Recorder struct {
	sink Sink
}

func NewRecorder(sink Sink) *Recorder { return &Recorder{sink: sink} }

func (r *Recorder) Record(ctx context.Context, ex tutor.Exchange) error {
	rec := Record{
		SessionID: ex.SessionID,
		Mode:      ex.Mode.String(),
		CreatedAt: ex.At,
	}
	var changed bool
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&rec.Question, ex.Question},
		{&rec.Response, ex.Response},
		{&rec.Reply, ex.Reply},
		{&rec.Review, ex.Review},
	} {
		redacted, c := RedactPII(f.src)
		*f.dst = redacted
		changed = changed || c
	}
	rec.PIIRedacted = changed
	return r.sink.Save(ctx, rec)
}
