package transactions

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sol-hydraulics/multisender/service/common"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StorableTransaction is the persisted record of one batch. It keeps the
// compiled instructions and every signature ever submitted for the batch so
// an interrupted job can resume without re-batching or double sending.
type StorableTransaction struct {
	gorm.Model
	ID uuid.UUID `gorm:"column:id;primary_key;type:uuid;"`

	JobID    uuid.UUID `gorm:"column:job_id;index"`
	Position int       `gorm:"column:position"`
	IsRefund bool      `gorm:"column:is_refund"`

	State      common.BatchState `gorm:"column:state;not null;default:null;index"`
	ErrorKind  errs.Kind         `gorm:"column:error_kind"`
	Error      string            `gorm:"column:error"`
	RetryCount uint              `gorm:"column:retry_count"`

	Signature            common.Signature `gorm:"column:signature"`
	Signatures           datatypes.JSON   `gorm:"column:signatures"`
	LastValidBlockHeight uint64           `gorm:"column:last_valid_block_height"`

	RecipientIDs datatypes.JSON `gorm:"column:recipient_ids"`
	Instructions datatypes.JSON `gorm:"column:instructions"`
}

type storedAccount struct {
	PublicKey  solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

type storedInstruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []storedAccount  `json:"accounts"`
	Data      []byte           `json:"data"`
}

func NewTransaction(jobID uuid.UUID, position int, instructions []solana.Instruction, recipientIDs []uuid.UUID) (*StorableTransaction, error) {
	stored := make([]storedInstruction, len(instructions))
	for i, ix := range instructions {
		data, err := ix.Data()
		if err != nil {
			return nil, fmt.Errorf("error while encoding instruction %d: %w", i, err)
		}
		accounts := make([]storedAccount, len(ix.Accounts()))
		for j, a := range ix.Accounts() {
			accounts[j] = storedAccount{a.PublicKey, a.IsSigner, a.IsWritable}
		}
		stored[i] = storedInstruction{ix.ProgramID(), accounts, data}
	}

	ixJSON, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	if recipientIDs == nil {
		recipientIDs = []uuid.UUID{}
	}
	idsJSON, err := json.Marshal(recipientIDs)
	if err != nil {
		return nil, err
	}

	transaction := StorableTransaction{
		JobID:        jobID,
		Position:     position,
		State:        common.BatchStateBuilt,
		Signatures:   datatypes.JSON("[]"),
		RecipientIDs: idsJSON,
		Instructions: ixJSON,
	}

	return &transaction, nil
}

func (t *StorableTransaction) InstructionsAsSolana() ([]solana.Instruction, error) {
	stored := []storedInstruction{}
	if err := json.Unmarshal(t.Instructions, &stored); err != nil {
		return nil, err
	}

	res := make([]solana.Instruction, len(stored))
	for i, s := range stored {
		accounts := make(solana.AccountMetaSlice, len(s.Accounts))
		for j, a := range s.Accounts {
			accounts[j] = &solana.AccountMeta{PublicKey: a.PublicKey, IsSigner: a.IsSigner, IsWritable: a.IsWritable}
		}
		res[i] = solana.NewInstruction(s.ProgramID, accounts, s.Data)
	}

	return res, nil
}

func (t *StorableTransaction) RecipientIDList() ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if len(t.RecipientIDs) == 0 {
		return ids, nil
	}
	if err := json.Unmarshal(t.RecipientIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *StorableTransaction) SignatureList() ([]solana.Signature, error) {
	sigs := []solana.Signature{}
	if len(t.Signatures) == 0 {
		return sigs, nil
	}
	if err := json.Unmarshal(t.Signatures, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

// AddSignature remembers the signature of a signed transaction and makes it
// the current one. It is stored before the transaction is sent.
func (t *StorableTransaction) AddSignature(sig solana.Signature, lastValidBlockHeight uint64) error {
	sigs, err := t.SignatureList()
	if err != nil {
		return err
	}

	known := false
	for _, s := range sigs {
		if s == sig {
			known = true
			break
		}
	}
	if !known {
		sigs = append(sigs, sig)
	}

	b, err := json.Marshal(sigs)
	if err != nil {
		return err
	}

	t.Signatures = b
	t.Signature = common.Signature(sig)
	t.LastValidBlockHeight = lastValidBlockHeight
	if t.State == common.BatchStateBuilt {
		t.State = common.BatchStateSigned
	}

	return nil
}

// MarkSubmitted records that the current transaction was handed to the
// cluster.
func (t *StorableTransaction) MarkSubmitted() {
	if t.State == common.BatchStateBuilt || t.State == common.BatchStateSigned {
		t.State = common.BatchStateSubmitted
	}
}

// ToBatch turns the record into input for the Engine.
func (t *StorableTransaction) ToBatch() (*Batch, error) {
	ixs, err := t.InstructionsAsSolana()
	if err != nil {
		return nil, err
	}
	sigs, err := t.SignatureList()
	if err != nil {
		return nil, err
	}
	return &Batch{
		ID:                   t.ID,
		Instructions:         ixs,
		Signatures:           sigs,
		LastValidBlockHeight: t.LastValidBlockHeight,
	}, nil
}

// HandleOutcome records the final result of the batch.
func (t *StorableTransaction) HandleOutcome(o Outcome) {
	if o.Attempts > 1 {
		t.RetryCount = uint(o.Attempts - 1)
	}

	if !o.State.IsTerminal() {
		return
	}

	t.State = o.State
	if o.Signature != (solana.Signature{}) {
		t.Signature = common.Signature(o.Signature)
	}

	t.ErrorKind = ""
	t.Error = ""
	if o.Err != nil {
		t.ErrorKind = o.ErrorKind()
		t.Error = o.Err.Error()
	}
}
