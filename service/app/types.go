package app

import (
	"github.com/google/uuid"
	"github.com/sol-hydraulics/multisender/service/common"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/fees"
	"gorm.io/gorm"
)

// DistributionJob sends one token to many recipients on behalf of a sender.
type DistributionJob struct {
	gorm.Model
	ID uuid.UUID `gorm:"column:id;primary_key;type:uuid;"`

	SenderWallet  common.SolanaAddress `gorm:"column:sender_wallet;index"`
	TokenAddress  common.SolanaAddress `gorm:"column:token_address;index"`
	TokenSymbol   string               `gorm:"column:token_symbol"`
	TokenName     string               `gorm:"column:token_name"`
	TokenDecimals uint8                `gorm:"column:token_decimals"`
	PriorityTier  fees.PriorityTier    `gorm:"column:priority_tier"`
	Status        common.JobStatus     `gorm:"column:status;index"`

	RecipientsCount       int    `gorm:"column:recipients_count"`
	TotalAmount           uint64 `gorm:"column:total_amount"`
	NewAccountsCount      int    `gorm:"column:new_accounts_count"`
	ExistingAccountsCount int    `gorm:"column:existing_accounts_count"`
	SentCount             int    `gorm:"column:sent_count"`
	FailedCount           int    `gorm:"column:failed_count"`

	RefundTransactionSignature common.Signature `gorm:"column:refund_transaction_signature"`
	RefundError                string           `gorm:"column:refund_error"`

	Recipients []Recipient `gorm:"foreignKey:JobID"`
}

type Recipient struct {
	gorm.Model
	JobID uuid.UUID `gorm:"column:job_id;index"`
	ID    uuid.UUID `gorm:"column:id;primary_key;type:uuid;"`

	Position      int                  `gorm:"column:position"`
	WalletAddress common.SolanaAddress `gorm:"column:wallet_address"`
	Amount        uint64               `gorm:"column:amount"` // base units

	Status               common.RecipientStatus `gorm:"column:status"`
	TokenAccount         common.SolanaAddress   `gorm:"column:token_account"`
	NeedsAccount         bool                   `gorm:"column:needs_account"`
	RentLamports         uint64                 `gorm:"column:rent_lamports"`
	TransactionSignature common.Signature       `gorm:"column:transaction_signature"`
	ErrorKind            errs.Kind              `gorm:"column:error_kind"`
	Error                string                 `gorm:"column:error"`
}

// TokenSummary aggregates the distributions of one mint by one sender.
type TokenSummary struct {
	TokenAddress  common.SolanaAddress
	TokenSymbol   string
	TokenName     string
	TokenDecimals uint8
	Jobs          int
	Recipients    int
	TotalAmount   uint64
	Sent          int
	Failed        int
	LastJobID     uuid.UUID
	LastStatus    common.JobStatus
}

func (DistributionJob) TableName() string {
	return "distribution_jobs"
}

func (j *DistributionJob) BeforeCreate(tx *gorm.DB) (err error) {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (Recipient) TableName() string {
	return "distribution_recipients"
}

func (r *Recipient) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Snapshot returns a deep copy of the job and its recipients.
func (j *DistributionJob) Snapshot() DistributionJob {
	c := *j
	c.Recipients = append([]Recipient(nil), j.Recipients...)
	return c
}
