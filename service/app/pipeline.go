package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/batcher"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/metrics"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
	"github.com/sol-hydraulics/multisender/service/transactions"
)

// ProcessDistribution drives a job as far as it gets: a PENDING job is
// planned into batches, outstanding batches are submitted, and once every
// recipient is final the job is finished. Calling it again for a job that
// was interrupted resumes where it stopped without resending batches that
// already landed.
func (app *App) ProcessDistribution(ctx context.Context, id uuid.UUID) error {
	app.processing.Lock()
	defer app.processing.Unlock()

	start := time.Now()

	logger := log.WithFields(log.Fields{
		"method": "ProcessDistribution",
		"jobID":  id,
	})

	job, err := app.db.GetDistributionJob(id)
	if err != nil {
		return err
	}

	switch job.Status {
	case common.JobStatusPending:
		logger.Info("Planning distribution")
		if err := app.plan(ctx, job); err != nil {
			return err
		}
	case common.JobStatusProcessing:
		logger.Debug("Resuming distribution")
	default:
		// Final, nothing to do
		return nil
	}

	batches, err := app.db.GetJobTransactions(job.ID)
	if err != nil {
		return err
	}

	tracker := NewTracker(app.db, job, batches)

	if err := tracker.Reconcile(); err != nil {
		return err
	}

	pending, err := tracker.Pending()
	if err != nil {
		return err
	}

	if len(pending) > 0 {
		logger.WithField("batches", len(pending)).Info("Submitting batches")

		events := make(chan transactions.Event)
		done := make(chan error, 1)
		go func() {
			done <- tracker.Run(events)
		}()

		app.engine.SubmitAll(ctx, pending, events)
		close(events)

		if err := <-done; err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	status := tracker.Status()
	if !status.IsTerminal() {
		// Batches whose fate could not be determined are retried by the next run
		logger.Warn("Distribution has unresolved recipients")
		return nil
	}

	if err := app.refund(ctx, job); err != nil {
		return err
	}

	if err := job.SetTerminal(status); err != nil {
		return err
	}

	if err := app.db.UpdateDistributionJob(job); err != nil {
		return err
	}

	metrics.JobsTotal.WithLabelValues(string(job.Status)).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	logger.WithFields(log.Fields{
		"status":   job.Status,
		"sent":     job.SentCount,
		"failed":   job.FailedCount,
		"new":      job.NewAccountsCount,
		"existing": job.ExistingAccountsCount,
	}).Info("Distribution finished")

	return nil
}

// plan provisions token accounts and packs the transfers into batches. Lookup
// failures and transfers that can never fit a transaction fail their
// recipient here. The plan is stored in one database transaction, so a job is
// either PENDING without batches or PROCESSING with all of them.
func (app *App) plan(ctx context.Context, job *DistributionJob) error {
	if err := job.SetProcessing(); err != nil {
		return err
	}

	payer := app.signer.PublicKey()
	mint := job.TokenAddress.PublicKey()

	source, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return fmt.Errorf("error while deriving distributor token account: %w", err)
	}

	wallets := make([]solana.PublicKey, len(job.Recipients))
	for i, r := range job.Recipients {
		wallets[i] = r.WalletAddress.PublicKey()
	}

	results, failures := app.provisioner.ProvisionAll(ctx, payer, mint, wallets)
	if err := ctx.Err(); err != nil {
		// Lookups were cut short, do not blame the recipients
		return err
	}

	byID := make(map[uuid.UUID]*Recipient, len(job.Recipients))
	groups := make([]batcher.Group, 0, len(job.Recipients))
	for i := range job.Recipients {
		r := &job.Recipients[i]
		byID[r.ID] = r

		if failures[i] != nil {
			if err := r.SetFailed(failures[i]); err != nil {
				return err
			}
			continue
		}

		res := results[i]
		r.TokenAccount = common.SolanaAddress(res.TokenAccount)
		r.NeedsAccount = res.NeedsAccount()
		r.RentLamports = res.RentLamports

		ixs := append([]solana.Instruction{}, res.Instructions...)
		ixs = append(ixs, token.NewTransferInstruction(r.Amount, source, res.TokenAccount, payer, nil).Build())
		groups = append(groups, batcher.Group{RecipientID: r.ID, Instructions: ixs})
	}

	job.NewAccountsCount, job.ExistingAccountsCount = CountAccounts(job.Recipients)

	b := batcher.New(app.limits, solana_helpers.TransactionSizer{Payer: payer}, app.overhead(job))
	planned, rejections, err := b.Batch(groups)
	if err != nil {
		return err
	}

	for _, rej := range rejections {
		if err := byID[rej.RecipientID].SetFailed(rej.Err); err != nil {
			return err
		}
	}

	records := make([]*transactions.StorableTransaction, 0, len(planned))
	for i, p := range planned {
		t, err := transactions.NewTransaction(job.ID, i, p.Instructions, p.RecipientIDs)
		if err != nil {
			return err
		}
		records = append(records, t)
	}

	job.SentCount, job.FailedCount = countOutcomes(job.Recipients)
	for _, r := range job.Recipients {
		if r.Status == common.RecipientStatusFailed {
			metrics.RecipientsTotal.WithLabelValues(string(r.Status), string(r.ErrorKind)).Inc()
		}
	}

	log.WithFields(log.Fields{
		"method":      "plan",
		"jobID":       job.ID,
		"batches":     len(records),
		"newAccounts": job.NewAccountsCount,
		"rejected":    job.FailedCount,
	}).Debug("Distribution planned")

	return app.db.SavePlan(job, records)
}

// overhead returns the per-transaction instructions of a job: compute budget
// first, then the platform fee for the recipients in the transaction.
func (app *App) overhead(job *DistributionJob) batcher.OverheadFunc {
	budget := job.PriorityTier.Budget()
	payer := app.signer.PublicKey()

	return func(recipients int) []solana.Instruction {
		ixs := budget.Instructions()
		if app.feeWallet != nil && recipients > 0 {
			fee := app.cfg.PlatformFeePerRecipientLamports * uint64(recipients)
			ixs = append(ixs, system.NewTransferInstruction(fee, payer, *app.feeWallet).Build())
		}
		return ixs
	}
}
