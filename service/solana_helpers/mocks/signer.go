package mocks

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sol-hydraulics/multisender/service/solana_helpers"
)

// Signer signs with a throwaway keypair unless Err is set.
type Signer struct {
	mu    sync.Mutex
	inner *solana_helpers.KeypairSigner
	calls int

	Err error
}

func NewSigner() *Signer {
	return &Signer{inner: solana_helpers.NewKeypairSignerFromKey(solana.NewWallet().PrivateKey)}
}

func (s *Signer) PublicKey() solana.PublicKey {
	return s.inner.PublicKey()
}

func (s *Signer) Sign(ctx context.Context, tx *solana.Transaction) error {
	s.mu.Lock()
	s.calls++
	err := s.Err
	s.mu.Unlock()

	if err != nil {
		return err
	}
	return s.inner.Sign(ctx, tx)
}

func (s *Signer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
