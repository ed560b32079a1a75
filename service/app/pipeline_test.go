package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sol-hydraulics/multisender/service/common"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
	"github.com/sol-hydraulics/multisender/service/solana_helpers/mocks"
	"github.com/sol-hydraulics/multisender/service/transactions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionCreatesMissingAccount(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)

	job := makeTestJob(3)
	env.markExisting(t, job, 0, 2)

	res := env.createAndProcess(t, job)

	assert.Equal(t, common.JobStatusCompleted, res.Status)
	assert.Equal(t, 1, res.NewAccountsCount)
	assert.Equal(t, 2, res.ExistingAccountsCount)
	assert.Equal(t, 3, res.SentCount)
	assert.Zero(t, res.FailedCount)
	assert.True(t, res.RefundTransactionSignature.IsEmpty())

	require.Len(t, res.Recipients, 3)
	for i, r := range res.Recipients {
		assert.Equal(t, i, r.Position)
		assert.Equal(t, common.RecipientStatusSent, r.Status)
		assert.False(t, r.TransactionSignature.IsEmpty())
	}
	assert.True(t, res.Recipients[1].NeedsAccount)
	assert.Equal(t, uint64(mocks.DefaultRentLamports), res.Recipients[1].RentLamports)

	// Everything fits a single transaction
	require.Len(t, env.rpc.Landed(), 1)
	sent := env.rpc.Sent()[0]
	mint := job.TokenAddress.PublicKey()
	for _, r := range res.Recipients {
		assert.True(t, mocks.Involves(sent, ata(t, r.WalletAddress.PublicKey(), mint)))
	}
	assert.True(t, mocks.Involves(sent, solana.ComputeBudget))
}

func TestInsufficientFundsFailsOnlyItsBatch(t *testing.T) {
	cfg := getTestCfg(t)
	// Two compute budget instructions and one transfer, one recipient per batch
	cfg.MaxInstructionsPerTx = 3
	env := newTestEnv(t, cfg, false)

	job := makeTestJob(3)
	env.markExisting(t, job, 0, 1, 2)
	env.rpc.SetAccountExists(ata(t, job.SenderWallet.PublicKey(), job.TokenAddress.PublicKey()))

	poisoned := ata(t, job.Recipients[1].WalletAddress.PublicKey(), job.TokenAddress.PublicKey())
	env.rpc.SendFunc = func(tx *solana.Transaction) error {
		if mocks.Involves(tx, poisoned) {
			return errors.New("Transaction simulation failed: Error processing Instruction 2: custom program error: 0x1")
		}
		return nil
	}

	res := env.createAndProcess(t, job)

	assert.Equal(t, common.JobStatusPartiallyFailed, res.Status)
	assert.Equal(t, 2, res.SentCount)
	assert.Equal(t, 1, res.FailedCount)

	assert.Equal(t, common.RecipientStatusSent, res.Recipients[0].Status)
	assert.Equal(t, common.RecipientStatusFailed, res.Recipients[1].Status)
	assert.Equal(t, errs.KindInsufficientFunds, res.Recipients[1].ErrorKind)
	assert.Equal(t, common.RecipientStatusSent, res.Recipients[2].Status)

	// Not retried
	attempts := 0
	for _, tx := range env.rpc.Sent() {
		if mocks.Involves(tx, poisoned) {
			attempts++
		}
	}
	assert.Equal(t, 1, attempts)

	// The failed amount went back to the sender
	assert.False(t, res.RefundTransactionSignature.IsEmpty())
	assert.Empty(t, res.RefundError)
	assert.Len(t, env.rpc.Landed(), 3)
}

func TestOversizedRecipientIsRejected(t *testing.T) {
	cfg := getTestCfg(t)
	cfg.MaxInstructionsPerTx = 2
	cfg.RefundFailed = false
	env := newTestEnv(t, cfg, false)

	job := makeTestJob(2)
	env.markExisting(t, job, 0, 1)

	res := env.createAndProcess(t, job)

	assert.Equal(t, common.JobStatusFailed, res.Status)
	for _, r := range res.Recipients {
		assert.Equal(t, common.RecipientStatusFailed, r.Status)
		assert.Equal(t, errs.KindInstructionTooLarge, r.ErrorKind)
	}
	assert.Empty(t, env.rpc.Sent())
}

func TestLookupFailureFailsRecipient(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)

	job := makeTestJob(2)
	env.markExisting(t, job, 0)
	mint := job.TokenAddress.PublicKey()
	env.rpc.SetLookupError(ata(t, job.Recipients[1].WalletAddress.PublicKey(), mint), errors.New("connection reset by peer"))
	env.rpc.SetAccountExists(ata(t, job.SenderWallet.PublicKey(), mint))

	res := env.createAndProcess(t, job)

	assert.Equal(t, common.JobStatusPartiallyFailed, res.Status)
	assert.Equal(t, common.RecipientStatusSent, res.Recipients[0].Status)
	assert.Equal(t, common.RecipientStatusFailed, res.Recipients[1].Status)
	assert.Equal(t, errs.KindAccountLookupFailed, res.Recipients[1].ErrorKind)

	// Lookup failures count as existing accounts
	assert.Equal(t, 0, res.NewAccountsCount)
	assert.Equal(t, 2, res.ExistingAccountsCount)
}

func TestPlatformFeeIsChargedPerTransaction(t *testing.T) {
	cfg := getTestCfg(t)
	feeWallet := solana.NewWallet().PublicKey()
	cfg.PlatformFeeWallet = feeWallet.String()
	cfg.PlatformFeePerRecipientLamports = 1000
	env := newTestEnv(t, cfg, false)

	job := makeTestJob(2)
	env.markExisting(t, job, 0, 1)

	res := env.createAndProcess(t, job)

	assert.Equal(t, common.JobStatusCompleted, res.Status)
	require.Len(t, env.rpc.Sent(), 1)
	assert.True(t, mocks.Involves(env.rpc.Sent()[0], feeWallet))
}

func TestResumeDoesNotResendLandedBatch(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)
	ctx := context.Background()

	job := makeTestJob(2)
	env.markExisting(t, job, 0, 1)
	require.NoError(t, env.app.CreateDistribution(ctx, job))

	// A previous run planned and sent the batch, then stopped before it
	// learned the result
	stored, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, env.app.plan(ctx, stored))

	records, err := env.app.db.GetJobTransactions(job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)

	batch, err := records[0].ToBatch()
	require.NoError(t, err)
	bh, err := env.rpc.GetLatestBlockhash(ctx)
	require.NoError(t, err)
	tx, err := solana_helpers.BuildTransaction(batch.Instructions, bh.Hash, env.signer.PublicKey())
	require.NoError(t, err)
	require.NoError(t, env.signer.Sign(ctx, tx))
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	sig, err := env.rpc.SendRawTransaction(ctx, raw)
	require.NoError(t, err)
	require.NoError(t, records[0].AddSignature(sig, bh.LastValidBlockHeight))
	records[0].MarkSubmitted()
	require.NoError(t, env.app.db.UpdateTransaction(records[0]))

	require.NoError(t, env.app.ProcessDistribution(ctx, job.ID))

	res, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, common.JobStatusCompleted, res.Status)
	for _, r := range res.Recipients {
		assert.Equal(t, solana.Signature(r.TransactionSignature), sig)
	}
	assert.Len(t, env.rpc.Sent(), 1)
}

func TestResumeSettlesFinishedBatch(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)
	ctx := context.Background()

	job := makeTestJob(2)
	env.markExisting(t, job, 0, 1)
	require.NoError(t, env.app.CreateDistribution(ctx, job))

	stored, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, env.app.plan(ctx, stored))

	// The batch was confirmed but the run stopped before the recipients
	// were updated
	records, err := env.app.db.GetJobTransactions(job.ID)
	require.NoError(t, err)
	sig := solana.Signature{1, 2, 3}
	records[0].State = common.BatchStateConfirmed
	records[0].Signature = common.Signature(sig)
	require.NoError(t, env.app.db.UpdateTransaction(records[0]))

	require.NoError(t, env.app.ProcessDistribution(ctx, job.ID))

	res, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, common.JobStatusCompleted, res.Status)
	assert.Equal(t, 2, res.SentCount)
	for _, r := range res.Recipients {
		assert.Equal(t, common.RecipientStatusSent, r.Status)
		assert.Equal(t, sig, solana.Signature(r.TransactionSignature))
	}
	assert.Empty(t, env.rpc.Sent())
}

func TestTimedOutBatchIsRefundedOnlyOnceExpired(t *testing.T) {
	cfg := getTestCfg(t)
	cfg.ConfirmTimeout = time.Nanosecond
	env := newTestEnv(t, cfg, false)
	env.rpc.ValidBlocks = 30

	job := makeTestJob(1)
	env.markExisting(t, job, 0)
	senderAccount := ata(t, job.SenderWallet.PublicKey(), job.TokenAddress.PublicKey())
	env.rpc.SetAccountExists(senderAccount)

	// The transfer is accepted but never lands, the refund lands at once
	var refundHeight uint64
	env.rpc.LandFunc = func(tx *solana.Transaction) (bool, interface{}) {
		if mocks.Involves(tx, senderAccount) {
			refundHeight, _ = env.rpc.GetBlockHeight(context.Background())
			return true, nil
		}
		return false, nil
	}

	res := env.createAndProcess(t, job)

	assert.Equal(t, common.JobStatusFailed, res.Status)
	assert.Equal(t, common.RecipientStatusFailed, res.Recipients[0].Status)
	assert.Equal(t, errs.KindConfirmationTimeout, res.Recipients[0].ErrorKind)
	assert.False(t, res.RefundTransactionSignature.IsEmpty())

	records, err := env.app.db.GetJobTransactions(job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotZero(t, records[0].LastValidBlockHeight)
	assert.Greater(t, refundHeight, records[0].LastValidBlockHeight)
	assert.Len(t, env.rpc.Landed(), 1)
}

// flakyStore fails batch writes while down is set.
type flakyStore struct {
	Store
	down     atomic.Bool
	onlyFor  func(*transactions.StorableTransaction) bool
	failures atomic.Int32
}

var errDatabaseDown = errors.New("database is down")

func (s *flakyStore) failing(tx *transactions.StorableTransaction) bool {
	if !s.down.Load() || (s.onlyFor != nil && !s.onlyFor(tx)) {
		return false
	}
	s.failures.Add(1)
	return true
}

func (s *flakyStore) UpdateTransaction(tx *transactions.StorableTransaction) error {
	if s.failing(tx) {
		return errDatabaseDown
	}
	return s.Store.UpdateTransaction(tx)
}

func (s *flakyStore) SaveBatchResult(j *DistributionJob, tx *transactions.StorableTransaction, recipients []*Recipient) error {
	if s.failing(tx) {
		return errDatabaseDown
	}
	return s.Store.SaveBatchResult(j, tx, recipients)
}

func TestUnstoredSignatureIsNeverSent(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)
	ctx := context.Background()

	store := &flakyStore{Store: env.app.db}
	env.app.db = store

	job := makeTestJob(2)
	env.markExisting(t, job, 0, 1)
	require.NoError(t, env.app.CreateDistribution(ctx, job))

	store.down.Store(true)
	err := env.app.ProcessDistribution(ctx, job.ID)
	assert.ErrorIs(t, err, errDatabaseDown)
	assert.NotZero(t, store.failures.Load())
	assert.Empty(t, env.rpc.Sent())

	res, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, common.JobStatusProcessing, res.Status)

	store.down.Store(false)
	require.NoError(t, env.app.ProcessDistribution(ctx, job.ID))

	res, err = env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, common.JobStatusCompleted, res.Status)
	assert.Len(t, env.rpc.Sent(), 1)
	assert.Len(t, env.rpc.Landed(), 1)

	records, err := env.app.db.GetJobTransactions(job.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	sigs, err := records[0].SignatureList()
	require.NoError(t, err)
	assert.Len(t, sigs, 1)
}

func TestUnstoredRefundSignatureIsNeverSent(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)
	ctx := context.Background()

	store := &flakyStore{
		Store:   env.app.db,
		onlyFor: func(tx *transactions.StorableTransaction) bool { return tx.IsRefund },
	}
	env.app.db = store

	job := makeTestJob(1)
	env.markExisting(t, job, 0)
	mint := job.TokenAddress.PublicKey()
	senderAccount := ata(t, job.SenderWallet.PublicKey(), mint)
	env.rpc.SetAccountExists(senderAccount)

	poisoned := ata(t, job.Recipients[0].WalletAddress.PublicKey(), mint)
	env.rpc.SendFunc = func(tx *solana.Transaction) error {
		if mocks.Involves(tx, poisoned) {
			return errors.New("custom program error: 0x1")
		}
		return nil
	}

	refunds := func() int {
		n := 0
		for _, tx := range env.rpc.Sent() {
			if mocks.Involves(tx, senderAccount) {
				n++
			}
		}
		return n
	}

	require.NoError(t, env.app.CreateDistribution(ctx, job))

	store.down.Store(true)
	err := env.app.ProcessDistribution(ctx, job.ID)
	assert.ErrorIs(t, err, errDatabaseDown)
	assert.Zero(t, refunds())

	store.down.Store(false)
	require.NoError(t, env.app.ProcessDistribution(ctx, job.ID))

	res, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, common.JobStatusFailed, res.Status)
	assert.False(t, res.RefundTransactionSignature.IsEmpty())
	assert.Equal(t, 1, refunds())
}

func TestCancelledPlanningLeavesJobPending(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)

	job := makeTestJob(2)
	require.NoError(t, env.app.CreateDistribution(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.app.ProcessDistribution(ctx, job.ID)
	assert.ErrorIs(t, err, context.Canceled)

	res, err := env.app.GetDistribution(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, common.JobStatusPending, res.Status)
	for _, r := range res.Recipients {
		assert.Equal(t, common.RecipientStatusPending, r.Status)
	}
}

func TestProcessingFinishedJobIsNoop(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), false)

	job := makeTestJob(1)
	env.markExisting(t, job, 0)
	res := env.createAndProcess(t, job)
	require.Equal(t, common.JobStatusCompleted, res.Status)

	require.NoError(t, env.app.ProcessDistribution(context.Background(), job.ID))
	assert.Len(t, env.rpc.Sent(), 1)
}

func TestPollerProcessesJobs(t *testing.T) {
	env := newTestEnv(t, getTestCfg(t), true)
	ctx := context.Background()

	job := makeTestJob(2)
	env.markExisting(t, job, 0, 1)
	require.NoError(t, env.app.CreateDistribution(ctx, job))

	assert.Eventually(t, func() bool {
		res, err := env.app.GetDistribution(ctx, job.ID)
		return err == nil && res.Status == common.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}
