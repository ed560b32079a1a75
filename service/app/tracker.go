package app

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/metrics"
	"github.com/sol-hydraulics/multisender/service/transactions"
)

// Tracker owns the recipient and batch records of one job while it is being
// submitted. Events are applied by a single goroutine (Run), readers take
// consistent snapshots at any time.
type Tracker struct {
	mu         sync.RWMutex
	store      Store
	job        *DistributionJob
	recipients map[uuid.UUID]*Recipient
	batches    map[uuid.UUID]*transactions.StorableTransaction
	order      []*transactions.StorableTransaction
	logger     *log.Entry
}

func NewTracker(store Store, job *DistributionJob, batches []*transactions.StorableTransaction) *Tracker {
	t := &Tracker{
		store:      store,
		job:        job,
		recipients: make(map[uuid.UUID]*Recipient, len(job.Recipients)),
		batches:    make(map[uuid.UUID]*transactions.StorableTransaction, len(batches)),
		order:      batches,
		logger: log.WithFields(log.Fields{
			"method": "Tracker",
			"jobID":  job.ID,
		}),
	}
	for i := range job.Recipients {
		t.recipients[job.Recipients[i].ID] = &job.Recipients[i]
	}
	for _, b := range batches {
		t.batches[b.ID] = b
	}
	return t
}

// Run applies events until the channel is closed. It keeps draining after a
// failed write and returns the first error. The result of storing a signed
// transaction is reported back on the event's Ack.
func (t *Tracker) Run(events <-chan transactions.Event) error {
	var first error
	for ev := range events {
		err := t.Apply(ev)
		if ev.Ack != nil {
			ev.Ack <- err
		}
		if err != nil {
			t.logger.WithFields(log.Fields{"error": err, "batchID": ev.BatchID}).Error("Failed to apply event")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (t *Tracker) Apply(ev transactions.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch, ok := t.batches[ev.BatchID]
	if !ok {
		return fmt.Errorf("unknown batch %s", ev.BatchID)
	}

	switch ev.Type {
	case transactions.EventSigned:
		if err := batch.AddSignature(ev.Signature, ev.LastValidBlockHeight); err != nil {
			return err
		}
		return t.store.UpdateTransaction(batch)

	case transactions.EventSubmitted:
		if err := batch.AddSignature(ev.Signature, ev.LastValidBlockHeight); err != nil {
			return err
		}
		batch.MarkSubmitted()
		return t.store.UpdateTransaction(batch)

	case transactions.EventResolved:
		if ev.Outcome == nil {
			return fmt.Errorf("resolved event of batch %s without outcome", ev.BatchID)
		}
		batch.HandleOutcome(*ev.Outcome)
		if !batch.State.IsTerminal() {
			return t.store.UpdateTransaction(batch)
		}
		return t.settle(batch)
	}

	return fmt.Errorf("unknown event type %q", ev.Type)
}

// Reconcile settles recipients of batches that reached a final state in an
// earlier run, which was interrupted before the recipients were updated.
func (t *Tracker) Reconcile() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, batch := range t.batches {
		if !batch.State.IsTerminal() {
			continue
		}
		if err := t.settle(batch); err != nil {
			return err
		}
	}
	return nil
}

// settle moves the recipients of a final batch to SENT or FAILED and stores
// the batch together with them.
func (t *Tracker) settle(batch *transactions.StorableTransaction) error {
	ids, err := batch.RecipientIDList()
	if err != nil {
		return err
	}

	changed := make([]*Recipient, 0, len(ids))
	for _, id := range ids {
		r, ok := t.recipients[id]
		if !ok {
			return fmt.Errorf("batch %s references unknown recipient %s", batch.ID, id)
		}
		if r.Status.IsTerminal() {
			continue
		}

		if batch.State == common.BatchStateConfirmed {
			if r.NeedsAccount {
				if err := r.SetAccountCreated(); err != nil {
					return err
				}
				metrics.AccountsCreatedTotal.Inc()
			}
			if err := r.SetSent(solana.Signature(batch.Signature)); err != nil {
				return err
			}
		} else {
			if err := r.setFailed(batch.ErrorKind, batch.Error); err != nil {
				return err
			}
		}

		metrics.RecipientsTotal.WithLabelValues(string(r.Status), string(r.ErrorKind)).Inc()
		changed = append(changed, r)
	}

	t.job.SentCount, t.job.FailedCount = countOutcomes(t.job.Recipients)

	if len(changed) == 0 {
		return t.store.UpdateTransaction(batch)
	}
	return t.store.SaveBatchResult(t.job, batch, changed)
}

// Status is the aggregated job status at this point in time.
func (t *Tracker) Status() common.JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Aggregate(t.job.Recipients)
}

func (t *Tracker) Snapshot() DistributionJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.job.Snapshot()
}

// Pending lists the batches that still need submitting, in batch order.
func (t *Tracker) Pending() ([]*transactions.Batch, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	res := []*transactions.Batch{}
	for _, b := range t.order {
		if b.State.IsTerminal() {
			continue
		}
		batch, err := b.ToBatch()
		if err != nil {
			return nil, err
		}
		res = append(res, batch)
	}
	return res, nil
}
