// Package mocks holds in-memory stand-ins for the network and wallet
// capabilities.
package mocks

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
)

const DefaultRentLamports = 2_039_280

var ErrAlreadyProcessed = errors.New("Transaction simulation failed: This transaction has already been processed")

// RPC is a deterministic in-memory cluster. Every GetBlockHeight call
// advances the chain by one block.
type RPC struct {
	mu sync.Mutex

	Accounts     map[solana.PublicKey]bool
	LookupErrors map[solana.PublicKey]error
	RentLamports uint64
	ValidBlocks  uint64

	// SendFunc may reject a transaction before it reaches the cluster.
	SendFunc func(tx *solana.Transaction) error
	// LandFunc decides whether an accepted transaction lands and with which
	// execution error. Every accepted transaction lands cleanly when nil.
	LandFunc func(tx *solana.Transaction) (landed bool, txErr interface{})
	// ConfirmErr is returned by ConfirmTransaction when set.
	ConfirmErr error

	height   uint64
	hashes   uint64
	sent     []*solana.Transaction
	landed   []solana.Signature
	statuses map[solana.Signature]solana_helpers.SignatureStatus
}

func NewRPC() *RPC {
	return &RPC{
		Accounts:     map[solana.PublicKey]bool{},
		LookupErrors: map[solana.PublicKey]error{},
		RentLamports: DefaultRentLamports,
		ValidBlocks:  150,
		height:       1000,
		statuses:     map[solana.Signature]solana_helpers.SignatureStatus{},
	}
}

func (r *RPC) SetAccountExists(address solana.PublicKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Accounts[address] = true
}

func (r *RPC) SetLookupError(address solana.PublicKey, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LookupErrors[address] = err
}

// Sent returns every transaction handed to SendRawTransaction, in order.
func (r *RPC) Sent() []*solana.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*solana.Transaction{}, r.sent...)
}

// Landed returns the signatures of transactions executed on chain.
func (r *RPC) Landed() []solana.Signature {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]solana.Signature{}, r.landed...)
}

func (r *RPC) GetLatestBlockhash(ctx context.Context) (solana_helpers.Blockhash, error) {
	if err := ctx.Err(); err != nil {
		return solana_helpers.Blockhash{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes++
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], r.hashes)
	return solana_helpers.Blockhash{
		Hash:                 solana.Hash(sha256.Sum256(seed[:])),
		LastValidBlockHeight: r.height + r.ValidBlocks,
	}, nil
}

func (r *RPC) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*solana_helpers.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.LookupErrors[address]; ok {
		return nil, err
	}
	if !r.Accounts[address] {
		return nil, nil
	}
	return &solana_helpers.AccountInfo{Owner: solana.TokenProgramID, Lamports: r.RentLamports}, nil
}

func (r *RPC) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.RentLamports, nil
}

func (r *RPC) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.TransactionFromBytes(raw)
	if err != nil {
		return solana.Signature{}, err
	}
	sig := solana_helpers.SignatureOf(tx)

	r.mu.Lock()
	r.sent = append(r.sent, tx)
	sendFunc, landFunc := r.SendFunc, r.LandFunc
	r.mu.Unlock()

	if sendFunc != nil {
		if err := sendFunc(tx); err != nil {
			return solana.Signature{}, err
		}
	}

	landed, txErr := true, interface{}(nil)
	if landFunc != nil {
		landed, txErr = landFunc(tx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.statuses[sig]; ok && s.Confirmed {
		return solana.Signature{}, ErrAlreadyProcessed
	}
	if landed {
		r.statuses[sig] = solana_helpers.SignatureStatus{Found: true, Confirmed: true, Err: txErr}
		if txErr == nil {
			r.landed = append(r.landed, sig)
		}
	}

	return sig, nil
}

func (r *RPC) ConfirmTransaction(ctx context.Context, sig solana.Signature) (solana_helpers.SignatureStatus, error) {
	if err := ctx.Err(); err != nil {
		return solana_helpers.SignatureStatus{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ConfirmErr != nil {
		return solana_helpers.SignatureStatus{}, r.ConfirmErr
	}
	return r.statuses[sig], nil
}

func (r *RPC) GetBlockHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.height++
	return r.height, nil
}

// Involves reports whether address is one of tx's accounts.
func Involves(tx *solana.Transaction, address solana.PublicKey) bool {
	for _, k := range tx.Message.AccountKeys {
		if k == address {
			return true
		}
	}
	return false
}
