package app

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sol-hydraulics/multisender/service/common"
	errs "github.com/sol-hydraulics/multisender/service/errors"
)

// SetProcessing marks the job as picked up by the pipeline.
func (j *DistributionJob) SetProcessing() error {
	if j.Status != common.JobStatusPending {
		return fmt.Errorf("distribution job not in pending state")
	}
	j.Status = common.JobStatusProcessing
	return nil
}

// SetTerminal finishes the job with an aggregated status.
func (j *DistributionJob) SetTerminal(status common.JobStatus) error {
	if j.Status != common.JobStatusProcessing {
		return fmt.Errorf("distribution job not in processing state")
	}
	if !status.IsTerminal() {
		return fmt.Errorf("%s is not a final distribution job status", status)
	}
	j.Status = status
	return nil
}

// SetAccountCreated records that the token account of the recipient was
// created. Only valid for recipients that needed one.
func (r *Recipient) SetAccountCreated() error {
	if r.Status != common.RecipientStatusPending {
		return fmt.Errorf("recipient not in pending state")
	}
	if !r.NeedsAccount {
		return fmt.Errorf("recipient already had a token account")
	}
	r.Status = common.RecipientStatusAccountCreated
	return nil
}

func (r *Recipient) SetSent(sig solana.Signature) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("recipient already in final state %s", r.Status)
	}
	r.Status = common.RecipientStatusSent
	r.TransactionSignature = common.Signature(sig)
	r.ErrorKind = ""
	r.Error = ""
	return nil
}

func (r *Recipient) SetFailed(err error) error {
	kind, ok := errs.KindOf(err)
	if !ok {
		kind = errs.KindSubmissionRejected
	}
	return r.setFailed(kind, err.Error())
}

func (r *Recipient) setFailed(kind errs.Kind, msg string) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("recipient already in final state %s", r.Status)
	}
	r.Status = common.RecipientStatusFailed
	r.ErrorKind = kind
	r.Error = msg
	return nil
}

// Aggregate derives the status of a job from its recipients. A job without
// recipients, or where every recipient failed, is FAILED.
func Aggregate(recipients []Recipient) common.JobStatus {
	sent, failed := 0, 0
	for _, r := range recipients {
		switch r.Status {
		case common.RecipientStatusSent:
			sent++
		case common.RecipientStatusFailed:
			failed++
		default:
			return common.JobStatusProcessing
		}
	}
	switch {
	case sent == 0:
		return common.JobStatusFailed
	case failed == 0:
		return common.JobStatusCompleted
	default:
		return common.JobStatusPartiallyFailed
	}
}

// CountAccounts splits recipients into those whose token account has to be
// created and those who already had one. Recipients whose lookup failed
// count as existing.
func CountAccounts(recipients []Recipient) (newAccounts, existing int) {
	for _, r := range recipients {
		if r.NeedsAccount {
			newAccounts++
		}
	}
	return newAccounts, len(recipients) - newAccounts
}

func countOutcomes(recipients []Recipient) (sent, failed int) {
	for _, r := range recipients {
		switch r.Status {
		case common.RecipientStatusSent:
			sent++
		case common.RecipientStatusFailed:
			failed++
		}
	}
	return sent, failed
}
