package transcript

import (
	"context"
	"errors"

	"github.com/wolfman30/chatrelay/internal/dispatch"
)

// Multi fans every call out to each recorder and joins their errors. One
// failing recorder never prevents the others from running.
type Multi []dispatch.Recorder

// NewMulti drops nil recorders. It returns nil when none remain so callers
// can skip WithRecorder entirely.
func NewMulti(recorders ...dispatch.Recorder) dispatch.Recorder {
	var out Multi
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m Multi) StartRun(ctx context.Context, run dispatch.RunInfo) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.StartRun(ctx, run))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordMessage(ctx context.Context, rec dispatch.MessageRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordMessage(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m Multi) FinishRun(ctx context.Context, outcome *dispatch.Outcome) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.FinishRun(ctx, outcome))
	}
	return errors.Join(errs...)
}
