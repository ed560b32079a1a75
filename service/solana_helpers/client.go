package solana_helpers

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenAccountSize is the data length of an SPL token account.
const TokenAccountSize = 165

type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

type AccountInfo struct {
	Owner    solana.PublicKey
	Lamports uint64
}

// SignatureStatus is a single observation of a submitted signature.
// Found is false while the cluster has not seen the transaction.
// Confirmed is true once it reached the configured commitment, in which case
// Err holds the execution error if the transaction failed on chain.
type SignatureStatus struct {
	Found     bool
	Confirmed bool
	Err       interface{}
}

// RPC is the network capability the distribution pipeline depends on.
// Every call may fail with a transient network error.
type RPC interface {
	GetLatestBlockhash(ctx context.Context) (Blockhash, error)
	// GetAccountInfo returns nil and no error when the account does not exist.
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	// ConfirmTransaction looks up the current status of sig once, it does not block.
	ConfirmTransaction(ctx context.Context, sig solana.Signature) (SignatureStatus, error)
	GetBlockHeight(ctx context.Context) (uint64, error)
}

// Client implements RPC over a Solana JSON-RPC endpoint.
type Client struct {
	rpc           *rpc.Client
	commitment    rpc.CommitmentType
	skipPreflight bool
}

func NewClient(endpoint, commitment string, skipPreflight bool) *Client {
	c := rpc.CommitmentType(commitment)
	if c == "" {
		c = rpc.CommitmentConfirmed
	}
	return &Client{rpc.New(endpoint), c, skipPreflight}
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) GetLatestBlockhash(ctx context.Context) (Blockhash, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return Blockhash{}, err
	}
	if res == nil || res.Value == nil {
		return Blockhash{}, errors.New("empty getLatestBlockhash response")
	}
	return Blockhash{res.Value.Blockhash, res.Value.LastValidBlockHeight}, nil
}

func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	res, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{Commitment: c.commitment})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, nil
	}
	return &AccountInfo{Owner: res.Value.Owner, Lamports: res.Value.Lamports}, nil
}

func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	return c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, c.commitment)
}

func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	return c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	})
}

func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) (SignatureStatus, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		return SignatureStatus{}, nil
	}
	if err != nil {
		return SignatureStatus{}, err
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return SignatureStatus{}, nil
	}

	s := res.Value[0]
	status := SignatureStatus{Found: true, Err: s.Err}
	switch s.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		status.Confirmed = true
	case rpc.ConfirmationStatusConfirmed:
		status.Confirmed = c.commitment != rpc.CommitmentFinalized
	}
	return status, nil
}

func (c *Client) GetBlockHeight(ctx context.Context) (uint64, error) {
	return c.rpc.GetBlockHeight(ctx, c.commitment)
}
