package solana_helpers

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

func BuildTransaction(instructions []solana.Instruction, blockhash solana.Hash, payer solana.PublicKey) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("error while building transaction: %w", err)
	}
	return tx, nil
}

// SignatureOf returns the fee payer signature, which identifies tx on chain.
func SignatureOf(tx *solana.Transaction) solana.Signature {
	if len(tx.Signatures) == 0 {
		return solana.Signature{}
	}
	return tx.Signatures[0]
}

// TransactionSizer measures the wire size of a legacy transaction paid by
// Payer. Unsigned signature slots are counted at full size.
type TransactionSizer struct {
	Payer solana.PublicKey
}

func (s TransactionSizer) Size(instructions []solana.Instruction) (int, error) {
	tx, err := BuildTransaction(instructions, solana.Hash{}, s.Payer)
	if err != nil {
		return 0, err
	}
	b, err := tx.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}
