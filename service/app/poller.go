package app

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/config"
)

// poll drives jobs until Close is called. Jobs are processed one at a time
// in creation order, unfinished jobs before new ones.
func (app *App) poll() {
	defer app.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-app.quit
		cancel()
	}()

	ticker := time.NewTicker(app.cfg.JobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.runLoop(ctx, config.ConfigurableLoopProcessingJobs, common.JobStatusProcessing)
			app.runLoop(ctx, config.ConfigurableLoopPendingJobs, common.JobStatusPending)
		}
	}
}

func (app *App) runLoop(ctx context.Context, loop config.ConfigurableLoop, status common.JobStatus) {
	if !app.cfg.LoopEnabled(loop) || ctx.Err() != nil {
		return
	}

	logger := app.logger.WithFields(log.Fields{
		"method": "poll",
		"loop":   loop,
	})

	ids, err := app.db.ListDistributionJobIDs(status)
	if err != nil {
		logger.WithField("error", err).Error("Error while listing distribution jobs")
		return
	}

	for _, id := range ids {
		if err := app.ProcessDistribution(ctx, id); err != nil {
			handlePollerError(logger.WithField("jobID", id), err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func handlePollerError(logger *log.Entry, err error) {
	// Shutdown interrupts jobs, they are resumed on the next start
	if errors.Is(err, context.Canceled) {
		logger.Info("Distribution interrupted")
		return
	}
	logger.WithField("error", err).Error("Error while processing distribution")
}
