package app

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/transactions"
)

// refund sends the tokens of failed recipients back to the sender in one
// transaction. Errors of the refund itself end up in RefundError and do not
// change the job status. Only database and context errors are returned.
func (app *App) refund(ctx context.Context, job *DistributionJob) error {
	if !app.cfg.RefundFailed || !job.RefundTransactionSignature.IsEmpty() || job.RefundError != "" {
		return nil
	}

	var amount uint64
	for _, r := range job.Recipients {
		if r.Status == common.RecipientStatusFailed {
			amount += r.Amount
		}
	}
	if amount == 0 {
		return nil
	}

	payer := app.signer.PublicKey()
	sender := job.SenderWallet.PublicKey()
	if sender == payer {
		// Tokens never left the sender
		return nil
	}

	logger := log.WithFields(log.Fields{
		"method": "refund",
		"jobID":  job.ID,
		"amount": common.FormatTokenAmount(amount, job.TokenDecimals),
	})

	record, err := app.db.GetRefundTransaction(job.ID)
	if err != nil {
		return err
	}

	if record == nil {
		ixs, err := app.refundInstructions(ctx, job, amount)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithField("error", err).Warn("Could not build refund")
			job.RefundError = err.Error()
			return nil
		}

		record, err = transactions.NewTransaction(job.ID, job.RecipientsCount, ixs, nil)
		if err != nil {
			return err
		}
		record.IsRefund = true

		if err := app.db.InsertTransaction(record); err != nil {
			return err
		}
	}

	if !record.State.IsTerminal() {
		if err := app.submitRefund(ctx, record); err != nil {
			return err
		}
	}

	switch record.State {
	case common.BatchStateConfirmed:
		job.RefundTransactionSignature = record.Signature
		logger.WithField("signature", record.Signature).Info("Refunded failed recipients")
	case common.BatchStateFailed:
		job.RefundError = record.Error
		logger.WithField("error", record.Error).Warn("Refund failed")
	default:
		return fmt.Errorf("refund of job %s is unresolved", job.ID)
	}

	return nil
}

func (app *App) refundInstructions(ctx context.Context, job *DistributionJob, amount uint64) ([]solana.Instruction, error) {
	payer := app.signer.PublicKey()
	mint := job.TokenAddress.PublicKey()

	source, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return nil, err
	}

	res, err := app.provisioner.Provision(ctx, payer, job.SenderWallet.PublicKey(), mint)
	if err != nil {
		return nil, err
	}

	ixs := job.PriorityTier.Budget().Instructions()
	ixs = append(ixs, res.Instructions...)
	ixs = append(ixs, token.NewTransferInstruction(amount, source, res.TokenAccount, payer, nil).Build())
	return ixs, nil
}

// submitRefund submits the refund batch. Every signature is stored before its
// transaction is sent.
func (app *App) submitRefund(ctx context.Context, record *transactions.StorableTransaction) error {
	batch, err := record.ToBatch()
	if err != nil {
		return err
	}

	events := make(chan transactions.Event)
	done := make(chan error, 1)
	go func() {
		var first error
		for ev := range events {
			var err error
			switch ev.Type {
			case transactions.EventSigned:
				err = record.AddSignature(ev.Signature, ev.LastValidBlockHeight)
			case transactions.EventSubmitted:
				err = record.AddSignature(ev.Signature, ev.LastValidBlockHeight)
				record.MarkSubmitted()
			default:
				continue
			}
			if err == nil {
				err = app.db.UpdateTransaction(record)
			}
			if ev.Ack != nil {
				ev.Ack <- err
			}
			if err != nil && first == nil {
				first = err
			}
		}
		done <- first
	}()

	outcome := app.engine.Submit(ctx, batch, events)
	close(events)
	if err := <-done; err != nil {
		return err
	}

	record.HandleOutcome(outcome)
	if err := app.db.UpdateTransaction(record); err != nil {
		return err
	}

	if !record.State.IsTerminal() {
		return outcome.Err
	}
	return nil
}
