package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Dispatch errors. Both are permanent: redelivering the message cannot help.
var (
	ErrUnknownJob   = errors.New("unknown job type")
	ErrMalformedJob = errors.New("malformed job message")
)

// IndexRebuilder forces a rebuild of the railway index.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) error
}

// JobMessage is the payload of a worker job message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// Dispatcher routes job messages to the job that handles them.
type Dispatcher struct {
	watch  *WatchJob
	index  IndexRebuilder
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher. Either job may be nil, in which case
// its messages are rejected as unknown.
func NewDispatcher(watch *WatchJob, index IndexRebuilder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{watch: watch, index: index, logger: logger}
}

// Dispatch decodes data and runs the job it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedJob, err.Error())
	}

	switch {
	case msg.JobType == JobStatusCheck && d.watch != nil:
		_, err := d.watch.Run(ctx)
		return err
	case msg.JobType == JobIndexRebuild && d.index != nil:
		d.logger.Info().Msg("rebuilding railway index")
		if err := d.index.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuilding railway index: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// IsPermanent reports whether a dispatch error should be acked and dropped.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownJob) || errors.Is(err, ErrMalformedJob)
}
