package buttons

import (
	"context"

	"filebuttons/pkg/printer"
)

// JobContext is the printer state read once per accepted press.
type JobContext struct {
	// Closed is set when the printer connection is closed or in error.
	Closed   bool
	Job      *printer.Job
	Printing bool
}

// HasJob reports whether a file is loaded.
func (jc JobContext) HasJob() bool { return jc.Job != nil }

// ReadContext queries p. The job and printing state are only read when
// the connection is usable.
func ReadContext(ctx context.Context, p printer.Printer) (JobContext, error) {
	if p.Closed(ctx) {
		return JobContext{Closed: true}, nil
	}
	job, err := p.CurrentJob(ctx)
	if err != nil {
		return JobContext{}, err
	}
	printing, err := p.Printing(ctx)
	if err != nil {
		return JobContext{}, err
	}
	return JobContext{Job: job, Printing: printing}, nil
}
