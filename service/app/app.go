package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/sol-hydraulics/multisender/service/batcher"
	"github.com/sol-hydraulics/multisender/service/common"
	"github.com/sol-hydraulics/multisender/service/config"
	"github.com/sol-hydraulics/multisender/service/fees"
	"github.com/sol-hydraulics/multisender/service/provisioner"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
	"github.com/sol-hydraulics/multisender/service/transactions"
	"gorm.io/gorm"
)

type App struct {
	cfg         *config.Config
	logger      *log.Logger
	db          Store
	rpc         solana_helpers.RPC
	signer      solana_helpers.Signer
	provisioner *provisioner.Provisioner
	engine      *transactions.Engine
	limits      batcher.Limits
	feeWallet   *solana.PublicKey

	// Serializes processing, a job is only ever driven by one goroutine
	processing sync.Mutex

	quit chan bool // Chan type does not matter as we only use this to 'close'
	wg   sync.WaitGroup
}

func New(cfg *config.Config, logger *log.Logger, db *gorm.DB, rpc solana_helpers.RPC, signer solana_helpers.Signer, poll bool) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config can not be nil")
	}

	if logger == nil {
		logger = log.StandardLogger()
	}

	var feeWallet *solana.PublicKey
	if cfg.PlatformFeeWallet != "" && cfg.PlatformFeePerRecipientLamports > 0 {
		pk, err := solana.PublicKeyFromBase58(cfg.PlatformFeeWallet)
		if err != nil {
			return nil, fmt.Errorf("invalid platform fee wallet: %w", err)
		}
		feeWallet = &pk
	}

	limits := batcher.DefaultLimits()
	if cfg.MaxInstructionsPerTx > 0 {
		limits.MaxInstructions = cfg.MaxInstructionsPerTx
	}
	if cfg.MaxTransactionSize > 0 {
		limits.MaxSize = cfg.MaxTransactionSize
	}

	app := &App{
		cfg:         cfg,
		logger:      logger,
		db:          NewGormStore(db, cfg.BatchInsertSize),
		rpc:         rpc,
		signer:      signer,
		provisioner: provisioner.New(rpc, cfg.LookupConcurrency),
		engine:      transactions.NewEngine(transactions.EngineConfigFrom(cfg), rpc, signer),
		limits:      limits,
		feeWallet:   feeWallet,
		quit:        make(chan bool),
	}

	if poll {
		app.wg.Add(1)
		go app.poll()
	}

	return app, nil
}

// Closes allows the poller to close controllably
func (app *App) Close() {
	close(app.quit)
	app.wg.Wait()
}

// CreateDistribution validates and stores a new job. The poller picks it up.
func (app *App) CreateDistribution(ctx context.Context, job *DistributionJob) error {
	if job.PriorityTier == "" {
		job.PriorityTier = fees.ParseTierOr("", app.cfg.DefaultPriority)
	}

	if err := job.Validate(); err != nil {
		return err
	}

	job.ID = uuid.Nil
	job.Status = common.JobStatusPending
	job.RecipientsCount = len(job.Recipients)
	job.TotalAmount = 0
	for i := range job.Recipients {
		r := &job.Recipients[i]
		r.ID = uuid.Nil
		r.Position = i
		r.Status = common.RecipientStatusPending
		job.TotalAmount += r.Amount
	}

	return app.db.InsertDistributionJob(job)
}

func (app *App) ListDistributions(ctx context.Context, sender string, limit, offset int) ([]DistributionJob, error) {
	opt := ParseListOptions(limit, offset)

	var filter *common.SolanaAddress
	if sender != "" {
		addr, err := common.SolanaAddressFromString(sender)
		if err != nil {
			return nil, err
		}
		filter = &addr
	}

	return app.db.ListDistributionJobs(filter, opt)
}

func (app *App) GetDistribution(ctx context.Context, id uuid.UUID) (*DistributionJob, error) {
	return app.db.GetDistributionJob(id)
}

// ListTokens summarizes the distributions of a wallet per token, most
// recently distributed token first.
func (app *App) ListTokens(ctx context.Context, wallet string) ([]TokenSummary, error) {
	addr, err := common.SolanaAddressFromString(wallet)
	if err != nil {
		return nil, err
	}

	jobs, err := app.db.ListDistributionJobs(&addr, ParseListOptions(-1, 0))
	if err != nil {
		return nil, err
	}

	// jobs are newest first
	byToken := map[common.SolanaAddress]*TokenSummary{}
	order := []common.SolanaAddress{}
	for _, j := range jobs {
		s, ok := byToken[j.TokenAddress]
		if !ok {
			s = &TokenSummary{
				TokenAddress:  j.TokenAddress,
				TokenSymbol:   j.TokenSymbol,
				TokenName:     j.TokenName,
				TokenDecimals: j.TokenDecimals,
				LastJobID:     j.ID,
				LastStatus:    j.Status,
			}
			byToken[j.TokenAddress] = s
			order = append(order, j.TokenAddress)
		}
		s.Jobs++
		s.Recipients += j.RecipientsCount
		s.TotalAmount += j.TotalAmount
		s.Sent += j.SentCount
		s.Failed += j.FailedCount
	}

	res := make([]TokenSummary, 0, len(order))
	for _, a := range order {
		res = append(res, *byToken[a])
	}
	return res, nil
}
