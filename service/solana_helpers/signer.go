package solana_helpers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrWalletRejected     = errors.New("wallet rejected the transaction")
	ErrWalletDisconnected = errors.New("wallet disconnected")
)

// Signer is the wallet capability. Sign fills in the signature of
// PublicKey() on tx and must not modify the message.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(ctx context.Context, tx *solana.Transaction) error
}

// KeypairSigner signs with a private key held in memory.
type KeypairSigner struct {
	key solana.PrivateKey
	pub solana.PublicKey
}

func NewKeypairSigner(base58Key string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromBase58(base58Key)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeypairSignerFromKey(key), nil
}

func NewKeypairSignerFromKey(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key, pub: key.PublicKey()}
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.pub
}

func (s *KeypairSigner) Sign(ctx context.Context, tx *solana.Transaction) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrWalletDisconnected, err)
	}

	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k == s.pub {
			return &s.key
		}
		return nil
	})
	if err != nil {
		// Any signer other than the keypair is missing
		return fmt.Errorf("%w: %s", ErrWalletRejected, err)
	}

	return nil
}
