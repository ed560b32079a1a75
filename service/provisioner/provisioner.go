// Package provisioner decides, per recipient, whether an associated token
// account has to be created before tokens can be transferred to it.
package provisioner

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	log "github.com/sirupsen/logrus"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
	"golang.org/x/sync/errgroup"
)

// Result describes the token account of one wallet. Instructions is empty
// when the account already exists.
type Result struct {
	Wallet       solana.PublicKey
	TokenAccount solana.PublicKey
	Exists       bool
	Instructions []solana.Instruction
	RentLamports uint64
}

func (r *Result) NeedsAccount() bool {
	return !r.Exists
}

type Provisioner struct {
	rpc         solana_helpers.RPC
	concurrency int

	rentMu sync.Mutex
	rent   uint64
}

func New(rpc solana_helpers.RPC, concurrency int) *Provisioner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Provisioner{rpc: rpc, concurrency: concurrency}
}

// createIdempotent is the instruction index of CreateIdempotent, which
// succeeds when the account already exists.
const createIdempotent = 1

// CreateInstruction builds the instruction that creates wallet's associated
// token account for mint, paid by payer. It does not fail when the account
// was created in the meantime.
func CreateInstruction(payer, wallet, mint solana.PublicKey) solana.Instruction {
	create := associatedtokenaccount.NewCreateInstruction(payer, wallet, mint).Build()
	return solana.NewInstruction(associatedtokenaccount.ProgramID, create.Accounts(), []byte{createIdempotent})
}

// Provision looks up wallet's associated token account for mint. It only
// builds instructions, nothing is sent.
func (p *Provisioner) Provision(ctx context.Context, payer, wallet, mint solana.PublicKey) (*Result, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return nil, errs.New(errs.KindAccountLookupFailed, fmt.Errorf("error while deriving token account of %s: %w", wallet, err))
	}

	info, err := p.rpc.GetAccountInfo(ctx, ata)
	if err != nil {
		return nil, errs.New(errs.KindAccountLookupFailed, fmt.Errorf("error while looking up token account %s: %w", ata, err))
	}

	res := &Result{Wallet: wallet, TokenAccount: ata, Exists: info != nil}
	if res.Exists {
		return res, nil
	}

	rent, err := p.rentExemption(ctx)
	if err != nil {
		return nil, errs.New(errs.KindAccountLookupFailed, fmt.Errorf("error while fetching rent exemption: %w", err))
	}

	res.RentLamports = rent
	res.Instructions = []solana.Instruction{CreateInstruction(payer, wallet, mint)}

	return res, nil
}

// ProvisionAll runs Provision for every wallet with bounded concurrency.
// Results and errors are indexed like wallets, exactly one of them is set
// per slot.
func (p *Provisioner) ProvisionAll(ctx context.Context, payer, mint solana.PublicKey, wallets []solana.PublicKey) ([]*Result, []error) {
	results := make([]*Result, len(wallets))
	failures := make([]error, len(wallets))

	logger := log.WithFields(log.Fields{
		"method":  "ProvisionAll",
		"mint":    mint,
		"wallets": len(wallets),
	})

	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)

	for i, w := range wallets {
		i, w := i, w
		g.Go(func() error {
			res, err := p.Provision(ctx, payer, w, mint)
			if err != nil {
				logger.WithFields(log.Fields{"wallet": w, "error": err}).Warn("Token account lookup failed")
				failures[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()

	return results, failures
}

func (p *Provisioner) rentExemption(ctx context.Context) (uint64, error) {
	p.rentMu.Lock()
	defer p.rentMu.Unlock()

	if p.rent > 0 {
		return p.rent, nil
	}

	rent, err := p.rpc.GetMinimumBalanceForRentExemption(ctx, solana_helpers.TokenAccountSize)
	if err != nil {
		return 0, err
	}
	p.rent = rent

	return rent, nil
}
