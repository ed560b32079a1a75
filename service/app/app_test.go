package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/config"
	"github.com/sol-hydraulics/multisender/service/fees"
	"github.com/sol-hydraulics/multisender/service/solana_helpers/mocks"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app    *App
	rpc    *mocks.RPC
	signer *mocks.Signer
	cfg    *config.Config
}

func getTestCfg(t *testing.T) *config.Config {
	return &config.Config{
		DatabaseType:         "sqlite",
		DatabaseDSN:          filepath.Join(t.TempDir(), "multisender.db"),
		DefaultPriority:      "TURBO",
		MaxTransactionSize:   1232,
		MaxInstructionsPerTx: 16,
		SubmitConcurrency:    2,
		LookupConcurrency:    4,
		MaxRetries:           2,
		RetryInitialBackoff:  time.Millisecond,
		RetryMaxBackoff:      5 * time.Millisecond,
		ConfirmTimeout:       time.Second,
		ConfirmPollInterval:  time.Millisecond,
		RefundFailed:         true,
		JobPollInterval:      10 * time.Millisecond,
		BatchInsertSize:      100,
	}
}

func newTestEnv(t *testing.T, cfg *config.Config, poll bool) *testEnv {
	t.Helper()

	db, err := common.NewGormDB(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	rpc, signer := mocks.NewRPC(), mocks.NewSigner()

	app, err := New(cfg, nil, db, rpc, signer, poll)
	require.NoError(t, err)

	t.Cleanup(func() {
		app.Close()
		common.CloseGormDB(db)
	})

	return &testEnv{app: app, rpc: rpc, signer: signer, cfg: cfg}
}

// ata is the associated token account of wallet for mint.
func ata(t *testing.T, wallet, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	a, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	return a
}

func makeTestJob(recipients int) *DistributionJob {
	job := &DistributionJob{
		SenderWallet:  common.SolanaAddress(solana.NewWallet().PublicKey()),
		TokenAddress:  common.SolanaAddress(solana.NewWallet().PublicKey()),
		TokenSymbol:   "TST",
		TokenName:     "Test token",
		TokenDecimals: 6,
		PriorityTier:  fees.PriorityTierTurbo,
	}
	for i := 0; i < recipients; i++ {
		job.Recipients = append(job.Recipients, Recipient{
			WalletAddress: common.SolanaAddress(solana.NewWallet().PublicKey()),
			Amount:        uint64(1_000_000 * (i + 1)),
		})
	}
	return job
}

// createAndProcess stores the job and runs the pipeline on it once.
func (env *testEnv) createAndProcess(t *testing.T, job *DistributionJob) *DistributionJob {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, env.app.CreateDistribution(ctx, job))
	require.NoError(t, env.app.ProcessDistribution(ctx, job.ID))

	res, err := env.app.GetDistribution(ctx, job.ID)
	require.NoError(t, err)
	return res
}

func (env *testEnv) markExisting(t *testing.T, job *DistributionJob, positions ...int) {
	t.Helper()
	mint := job.TokenAddress.PublicKey()
	for _, p := range positions {
		env.rpc.SetAccountExists(ata(t, job.Recipients[p].WalletAddress.PublicKey(), mint))
	}
}
