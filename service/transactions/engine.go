package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/config"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/metrics"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Batch is the input of the Engine. Signatures and LastValidBlockHeight are
// set when the batch was submitted before, e.g. by an interrupted run.
type Batch struct {
	ID                   uuid.UUID
	Instructions         []solana.Instruction
	Signatures           []solana.Signature
	LastValidBlockHeight uint64
}

type EventType string

const (
	// A transaction was signed and is about to be sent. The consumer stores
	// the signature and answers on Ack, nothing is sent before it did.
	EventSigned EventType = "SIGNED"
	// A signed transaction was handed to the cluster
	EventSubmitted EventType = "SUBMITTED"
	// The batch reached a final state, or gave up because of cancellation
	EventResolved EventType = "RESOLVED"
)

type Event struct {
	Type                 EventType
	BatchID              uuid.UUID
	Signature            solana.Signature
	LastValidBlockHeight uint64
	Outcome              *Outcome

	// Ack is set on EventSigned only
	Ack chan error
}

// PersistError means the signature of a transaction could not be stored
// before sending it. The transaction was not sent.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("error while storing signature: %v", e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Outcome of a batch. State is CONFIRMED or FAILED, unless the context was
// cancelled in which case the batch is left where it was and Err is the
// context error.
type Outcome struct {
	BatchID   uuid.UUID
	State     common.BatchState
	Signature solana.Signature
	Err       error
	Attempts  int
}

func (o Outcome) ErrorKind() errs.Kind {
	if kind, ok := errs.KindOf(o.Err); ok {
		return kind
	}
	if o.Err != nil {
		return errs.KindSubmissionRejected
	}
	return ""
}

type EngineConfig struct {
	MaxRetries          uint64
	InitialBackoff      time.Duration
	MaxBackoff          time.Duration
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	SendRate            float64
	Concurrency         int
	Clock               clockwork.Clock
}

func EngineConfigFrom(cfg *config.Config) EngineConfig {
	return EngineConfig{
		MaxRetries:          cfg.MaxRetries,
		InitialBackoff:      cfg.RetryInitialBackoff,
		MaxBackoff:          cfg.RetryMaxBackoff,
		ConfirmTimeout:      cfg.ConfirmTimeout,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
		SendRate:            cfg.TransactionSendRate,
		Concurrency:         cfg.SubmitConcurrency,
	}
}

// Engine signs, sends and confirms batches.
type Engine struct {
	cfg     EngineConfig
	rpc     solana_helpers.RPC
	signer  solana_helpers.Signer
	limiter *rate.Limiter
}

func NewEngine(cfg EngineConfig, rpc solana_helpers.RPC, signer solana_helpers.Signer) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = time.Second
	}

	limit := rate.Inf
	if cfg.SendRate > 0 {
		limit = rate.Limit(cfg.SendRate)
	}

	return &Engine{
		cfg:     cfg,
		rpc:     rpc,
		signer:  signer,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (e *Engine) Payer() solana.PublicKey {
	return e.signer.PublicKey()
}

// SubmitAll submits batches concurrently. Every batch emits exactly one
// EventResolved. One batch failing never stops the others. events is not
// closed and must be drained until SubmitAll returns, answering the Ack of
// every EventSigned.
func (e *Engine) SubmitAll(ctx context.Context, batches []*Batch, events chan<- Event) {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			e.Submit(ctx, b, events)
			return nil
		})
	}

	_ = g.Wait()
}

// submission is the mutable state of one batch while it is being submitted.
type submission struct {
	batch      *Batch
	logger     *log.Entry
	signatures []solana.Signature

	tx        *solana.Transaction
	raw       []byte
	blockhash solana_helpers.Blockhash

	attempts int
	landed   solana.Signature
	sentAt   time.Time
}

// Submit drives one batch through BUILT, SIGNED, SUBMITTED to CONFIRMED or
// FAILED and emits the final Outcome. Retryable failures are retried with
// exponential backoff, everything else fails the batch at once. A batch whose
// signature could not be stored is left unsent and not final.
func (e *Engine) Submit(ctx context.Context, batch *Batch, events chan<- Event) Outcome {
	s := &submission{
		batch:      batch,
		signatures: append([]solana.Signature{}, batch.Signatures...),
		logger: log.WithFields(log.Fields{
			"method":  "Submit",
			"batchID": batch.ID,
		}),
	}

	outcome := e.submit(ctx, s, events)

	switch outcome.State {
	case common.BatchStateConfirmed:
		s.logger.WithFields(log.Fields{"signature": outcome.Signature, "attempts": outcome.Attempts}).Debug("Batch confirmed")
	case common.BatchStateFailed:
		s.logger.WithFields(log.Fields{"error": outcome.Err, "attempts": outcome.Attempts}).Warn("Batch failed")
	default:
		s.logger.WithField("error", outcome.Err).Info("Batch submission interrupted")
	}

	if outcome.State.IsTerminal() {
		metrics.BatchesTotal.WithLabelValues(string(outcome.State), string(outcome.ErrorKind())).Inc()
		metrics.SubmissionAttempts.Observe(float64(outcome.Attempts))
	}

	emit(events, Event{Type: EventResolved, BatchID: batch.ID, Signature: outcome.Signature, Outcome: &outcome})

	return outcome
}

func (e *Engine) submit(ctx context.Context, s *submission, events chan<- Event) Outcome {
	outcome := Outcome{BatchID: s.batch.ID, State: common.BatchStateBuilt}
	if len(s.signatures) > 0 {
		outcome.State = common.BatchStateSubmitted
	}

	// A batch submitted by an earlier run may have landed or may still land
	if len(s.signatures) > 0 {
		done, err := e.resume(ctx, s)
		var permanent *backoff.PermanentError
		switch {
		case done:
			return e.finish(ctx, s, outcome, nil)
		case errors.As(err, &permanent):
			return e.finish(ctx, s, outcome, permanent.Err)
		case err != nil:
			// Unknown whether the earlier transaction lands, leave the batch
			// for the next run
			outcome.Err = err
			outcome.Signature = s.signatures[len(s.signatures)-1]
			return outcome
		}
	}

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.cfg.InitialBackoff),
		backoff.WithMaxInterval(e.cfg.MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)

	err := backoff.RetryNotify(
		func() error { return e.attempt(ctx, s, events) },
		backoff.WithContext(backoff.WithMaxRetries(bo, e.cfg.MaxRetries), ctx),
		func(err error, next time.Duration) {
			s.logger.WithFields(log.Fields{
				"error":   err,
				"attempt": s.attempts,
				"next":    next,
			}).Info("Retrying batch")
		},
	)

	return e.finish(ctx, s, outcome, err)
}

func (e *Engine) finish(ctx context.Context, s *submission, outcome Outcome, err error) Outcome {
	outcome.Attempts = s.attempts

	if s.landed != (solana.Signature{}) {
		outcome.Signature = s.landed
	} else if len(s.signatures) > 0 {
		outcome.Signature = s.signatures[len(s.signatures)-1]
	}

	if err == nil {
		outcome.State = common.BatchStateConfirmed
		outcome.Signature = s.landed
		return outcome
	}

	var persistErr *PersistError
	if errors.As(err, &persistErr) {
		outcome.Err = persistErr
		return outcome
	}

	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		if len(s.signatures) > 0 {
			outcome.State = common.BatchStateSubmitted
		}
		outcome.Err = ctx.Err()
		return outcome
	}

	classified := solana_helpers.Classify(err)
	metrics.RPCErrorsTotal.WithLabelValues(string(classified.Kind)).Inc()

	outcome.State = common.BatchStateFailed
	outcome.Err = classified
	return outcome
}

// resume settles signatures of an earlier run. It reports done when one of
// them landed. When the newest one may still land it waits for it.
func (e *Engine) resume(ctx context.Context, s *submission) (bool, error) {
	landed, err := e.checkLanded(ctx, s)
	if landed || err != nil {
		return landed, err
	}

	height, err := e.rpc.GetBlockHeight(ctx)
	if err != nil {
		return false, err
	}
	if height > s.batch.LastValidBlockHeight {
		return false, nil
	}

	last := s.signatures[len(s.signatures)-1]
	s.logger.WithField("signature", last).Info("Waiting for previously submitted transaction")

	err = e.confirm(ctx, s, last, s.batch.LastValidBlockHeight)
	if err == nil {
		return true, nil
	}
	// Both are only reported once the old transaction can no longer land,
	// start over
	if kind, _ := errs.KindOf(err); kind == errs.KindBlockhashExpired || kind == errs.KindConfirmationTimeout {
		return false, nil
	}
	return false, err
}

// attempt is one pass of the retry loop.
func (e *Engine) attempt(ctx context.Context, s *submission, events chan<- Event) error {
	s.attempts++

	// Never build or send again if an earlier signature already landed
	if len(s.signatures) > 0 {
		landed, err := e.checkLanded(ctx, s)
		if err != nil {
			return e.retryable(ctx, err)
		}
		if landed {
			return nil
		}
	}

	if s.tx == nil {
		if err := e.build(ctx, s); err != nil {
			return e.retryable(ctx, err)
		}
		if err := e.persist(s, events); err != nil {
			return backoff.Permanent(err)
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	sig, err := e.rpc.SendRawTransaction(ctx, s.raw)
	if err != nil {
		if solana_helpers.IsAlreadyProcessed(err) {
			// The exact same bytes were processed before, that is our signature
			sig = solana_helpers.SignatureOf(s.tx)
			s.logger.WithField("signature", sig).Debug("Transaction already processed")
		} else {
			classified := solana_helpers.Classify(err)
			metrics.RPCErrorsTotal.WithLabelValues(string(classified.Kind)).Inc()
			if classified.Kind == errs.KindBlockhashExpired {
				s.tx = nil
			}
			return e.retryable(ctx, classified)
		}
	}

	if sig == (solana.Signature{}) {
		sig = solana_helpers.SignatureOf(s.tx)
	}
	s.record(sig)
	s.sentAt = e.cfg.Clock.Now()

	emit(events, Event{
		Type:                 EventSubmitted,
		BatchID:              s.batch.ID,
		Signature:            sig,
		LastValidBlockHeight: s.blockhash.LastValidBlockHeight,
	})

	err = e.confirm(ctx, s, sig, s.blockhash.LastValidBlockHeight)
	if err == nil {
		metrics.ConfirmationDuration.Observe(e.cfg.Clock.Since(s.sentAt).Seconds())
		return nil
	}
	if kind, _ := errs.KindOf(err); kind == errs.KindBlockhashExpired {
		s.tx = nil
	}
	return e.retryable(ctx, err)
}

// build attaches a fresh blockhash and the fee payer, then signs.
func (e *Engine) build(ctx context.Context, s *submission) error {
	hash, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return fmt.Errorf("error while fetching blockhash: %w", err)
	}

	tx, err := solana_helpers.BuildTransaction(s.batch.Instructions, hash.Hash, e.signer.PublicKey())
	if err != nil {
		return errs.New(errs.KindSubmissionRejected, err)
	}

	if err := e.signer.Sign(ctx, tx); err != nil {
		return err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return errs.New(errs.KindSubmissionRejected, err)
	}

	s.tx, s.raw, s.blockhash = tx, raw, hash

	s.logger.WithFields(log.Fields{
		"signature":            solana_helpers.SignatureOf(tx),
		"lastValidBlockHeight": hash.LastValidBlockHeight,
		"size":                 len(raw),
	}).Trace("Batch signed")

	return nil
}

// persist hands the signature of a freshly signed transaction to the
// consumer and waits until it was stored.
func (e *Engine) persist(s *submission, events chan<- Event) error {
	if events == nil {
		return nil
	}

	ack := make(chan error, 1)
	events <- Event{
		Type:                 EventSigned,
		BatchID:              s.batch.ID,
		Signature:            solana_helpers.SignatureOf(s.tx),
		LastValidBlockHeight: s.blockhash.LastValidBlockHeight,
		Ack:                  ack,
	}
	if err := <-ack; err != nil {
		s.logger.WithField("error", err).Warn("Could not store signature, batch not sent")
		return &PersistError{Err: err}
	}
	return nil
}

// confirm polls the status of sig until it lands or the blockhash expires.
// Expiry within the confirmation timeout is retryable. Once the timeout has
// passed, sig is reported as timed out, but only after it can no longer land.
func (e *Engine) confirm(ctx context.Context, s *submission, sig solana.Signature, lastValidBlockHeight uint64) error {
	clock := e.cfg.Clock
	deadline := clock.Now().Add(e.cfg.ConfirmTimeout)
	overdue := false

	for {
		status, err := e.rpc.ConfirmTransaction(ctx, sig)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			s.logger.WithFields(log.Fields{"signature": sig, "error": err}).Debug("Error while checking signature status")
		case status.Confirmed:
			if status.Err != nil {
				return backoff.Permanent(solana_helpers.ClassifyOnChain(status.Err))
			}
			s.landed = sig
			return nil
		case !status.Found:
			height, err := e.rpc.GetBlockHeight(ctx)
			if err == nil && lastValidBlockHeight > 0 && height > lastValidBlockHeight {
				if overdue {
					return backoff.Permanent(errs.Newf(errs.KindConfirmationTimeout, "%s not confirmed within %s and expired at block height %d", sig, e.cfg.ConfirmTimeout, lastValidBlockHeight))
				}
				return errs.Newf(errs.KindBlockhashExpired, "block height %d passed last valid block height %d of %s", height, lastValidBlockHeight, sig)
			}
		}

		if !overdue && !clock.Now().Before(deadline) {
			overdue = true
			s.logger.WithFields(log.Fields{
				"signature":            sig,
				"lastValidBlockHeight": lastValidBlockHeight,
			}).Warn("Transaction not confirmed in time, waiting until it can no longer land")
		}

		select {
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		case <-clock.After(e.cfg.ConfirmPollInterval):
		}
	}
}

// checkLanded looks for a confirmed signature among every signature sent for
// the batch so far.
func (e *Engine) checkLanded(ctx context.Context, s *submission) (bool, error) {
	for _, sig := range s.signatures {
		status, err := e.rpc.ConfirmTransaction(ctx, sig)
		if err != nil {
			return false, errs.New(errs.KindNetworkTimeout, fmt.Errorf("error while checking earlier signature %s: %w", sig, err))
		}
		if !status.Confirmed {
			continue
		}
		if status.Err != nil {
			return false, backoff.Permanent(solana_helpers.ClassifyOnChain(status.Err))
		}
		s.landed = sig
		s.logger.WithField("signature", sig).Info("Earlier signature already confirmed")
		return true, nil
	}
	return false, nil
}

// retryable wraps every error that must not consume retry budget in
// backoff.Permanent.
func (e *Engine) retryable(ctx context.Context, err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return err
	}
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	if !errs.IsRetryable(solana_helpers.Classify(err)) {
		return backoff.Permanent(err)
	}
	return err
}

func (s *submission) record(sig solana.Signature) {
	for _, known := range s.signatures {
		if known == sig {
			return
		}
	}
	s.signatures = append(s.signatures, sig)
}

// emit blocks until the event is taken. Consumers must drain events until
// Submit returns.
func emit(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	events <- ev
}
