// Package resolver waits for a distribution job to reach a final status.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/common"
	multisender_http "github.com/sol-hydraulics/multisender/service/http"
)

var ErrNotFound = errors.New("distribution not found")

// Source fetches the current snapshot of a job. It returns ErrNotFound for
// unknown jobs.
type Source interface {
	GetStatus(ctx context.Context, id uuid.UUID) (*multisender_http.ResTransaction, error)
}

type Result struct {
	// Last status seen, empty if no fetch succeeded
	Status common.JobStatus
	// True when the wait timed out before the job finished
	StillProcessing bool
	Job             *multisender_http.ResTransaction
}

type Resolver struct {
	Source   Source
	Interval time.Duration
	Clock    clockwork.Clock
}

func New(source Source, interval time.Duration) *Resolver {
	return &Resolver{Source: source, Interval: interval, Clock: clockwork.NewRealClock()}
}

// Wait polls the job until it is final, timeout passes or ctx is done. A
// timeout is not an error, the result says the job is still processing.
// Cancelling only stops the waiting, the job itself is unaffected.
func (r *Resolver) Wait(ctx context.Context, id uuid.UUID, timeout time.Duration) (Result, error) {
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger := log.WithFields(log.Fields{
		"method": "Wait",
		"jobID":  id,
	})

	deadline := clock.Now().Add(timeout)
	res := Result{StillProcessing: true}

	for {
		job, err := r.Source.GetStatus(ctx, id)
		switch {
		case errors.Is(err, ErrNotFound):
			return Result{}, err
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.WithField("error", err).Warn("Could not fetch distribution status")
		default:
			res.Job = job
			res.Status = job.Status
			if job.Status.IsTerminal() {
				res.StillProcessing = false
				return res, nil
			}
		}

		if !clock.Now().Before(deadline) {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-clock.After(r.Interval):
		}
	}
}
