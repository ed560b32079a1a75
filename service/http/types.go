package http

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sol-hydraulics/multisender/service/app"
	"github.com/sol-hydraulics/multisender/service/common"
	errs "github.com/sol-hydraulics/multisender/service/errors"
	"github.com/sol-hydraulics/multisender/service/fees"
)

type ReqCreateDistribution struct {
	SenderWallet common.SolanaAddress `json:"senderWallet"`
	TokenAddress common.SolanaAddress `json:"tokenAddress"`
	TokenSymbol  string               `json:"tokenSymbol"`
	TokenName    string               `json:"tokenName"`
	Decimals     uint8                `json:"decimals"`
	Priority     string               `json:"priority,omitempty"`
	Recipients   []ReqRecipient       `json:"recipients"`
}

// ReqRecipient carries either a decimal Amount in token units or BaseUnits.
type ReqRecipient struct {
	Wallet    common.SolanaAddress `json:"wallet"`
	Amount    string               `json:"amount,omitempty"`
	BaseUnits *uint64              `json:"baseUnits,omitempty"`
}

type ResCreateDistribution struct {
	ID     uuid.UUID        `json:"id"`
	Status common.JobStatus `json:"status"`
}

type ResDistribution struct {
	ID                         uuid.UUID            `json:"id"`
	CreatedAt                  time.Time            `json:"createdAt"`
	UpdatedAt                  time.Time            `json:"updatedAt"`
	SenderWallet               common.SolanaAddress `json:"senderWallet"`
	TokenAddress               common.SolanaAddress `json:"tokenAddress"`
	TokenSymbol                string               `json:"tokenSymbol"`
	TokenName                  string               `json:"tokenName"`
	Decimals                   uint8                `json:"decimals"`
	Priority                   fees.PriorityTier    `json:"priority"`
	Status                     common.JobStatus     `json:"status"`
	RecipientsCount            int                  `json:"recipientsCount"`
	TotalAmount                string               `json:"totalAmount"`
	NewAccountsCount           int                  `json:"newAccountsCount"`
	ExistingAccountsCount      int                  `json:"existingAccountsCount"`
	SentCount                  int                  `json:"sentCount"`
	FailedCount                int                  `json:"failedCount"`
	RefundTransactionSignature common.Signature     `json:"refundTransactionSignature"`
	RefundError                string               `json:"refundError,omitempty"`
}

type ResRecipient struct {
	Wallet               common.SolanaAddress   `json:"wallet"`
	TokenAccount         common.SolanaAddress   `json:"tokenAccount"`
	Amount               string                 `json:"amount"`
	BaseUnits            uint64                 `json:"baseUnits"`
	Status               common.RecipientStatus `json:"status"`
	NeedsAccount         bool                   `json:"needsAccount"`
	TransactionSignature common.Signature       `json:"transactionSignature"`
	ErrorKind            errs.Kind              `json:"errorKind,omitempty"`
	Error                string                 `json:"error,omitempty"`
}

// ResTransaction is the full snapshot of a job.
type ResTransaction struct {
	ResDistribution
	Recipients []ResRecipient `json:"recipients"`
}

// ResTokenOrder is a compact progress view of a job.
type ResTokenOrder struct {
	ID              uuid.UUID          `json:"id"`
	Status          common.JobStatus   `json:"status"`
	Done            bool               `json:"done"`
	Total           int                `json:"total"`
	Sent            int                `json:"sent"`
	Failed          int                `json:"failed"`
	Pending         int                `json:"pending"`
	Signatures      []common.Signature `json:"signatures"`
	RefundSignature common.Signature   `json:"refundSignature"`
}

type ResToken struct {
	TokenAddress common.SolanaAddress `json:"tokenAddress"`
	TokenSymbol  string               `json:"tokenSymbol"`
	TokenName    string               `json:"tokenName"`
	Decimals     uint8                `json:"decimals"`
	Jobs         int                  `json:"jobs"`
	Recipients   int                  `json:"recipients"`
	TotalAmount  string               `json:"totalAmount"`
	Sent         int                  `json:"sent"`
	Failed       int                  `json:"failed"`
	LastJobID    uuid.UUID            `json:"lastJobId"`
	LastStatus   common.JobStatus     `json:"lastStatus"`
}

func (d ReqCreateDistribution) ToApp() (app.DistributionJob, error) {
	job := app.DistributionJob{
		SenderWallet:  d.SenderWallet,
		TokenAddress:  d.TokenAddress,
		TokenSymbol:   d.TokenSymbol,
		TokenName:     d.TokenName,
		TokenDecimals: d.Decimals,
		Recipients:    make([]app.Recipient, len(d.Recipients)),
	}

	if d.Priority != "" {
		job.PriorityTier = fees.ParseTier(d.Priority)
	}

	for i, r := range d.Recipients {
		amount, err := r.baseUnits(d.Decimals)
		if err != nil {
			return job, fmt.Errorf("error in recipient %d: %w", i+1, err)
		}
		job.Recipients[i] = app.Recipient{WalletAddress: r.Wallet, Amount: amount}
	}

	return job, nil
}

func (r ReqRecipient) baseUnits(decimals uint8) (uint64, error) {
	if r.BaseUnits != nil {
		if r.Amount != "" {
			return 0, fmt.Errorf("amount and baseUnits are mutually exclusive")
		}
		return *r.BaseUnits, nil
	}
	if r.Amount == "" {
		return 0, fmt.Errorf("amount missing")
	}
	return common.ParseTokenAmount(r.Amount, decimals)
}

func ResDistributionFromApp(j *app.DistributionJob) ResDistribution {
	return ResDistribution{
		ID:                         j.ID,
		CreatedAt:                  j.CreatedAt,
		UpdatedAt:                  j.UpdatedAt,
		SenderWallet:               j.SenderWallet,
		TokenAddress:               j.TokenAddress,
		TokenSymbol:                j.TokenSymbol,
		TokenName:                  j.TokenName,
		Decimals:                   j.TokenDecimals,
		Priority:                   j.PriorityTier,
		Status:                     j.Status,
		RecipientsCount:            j.RecipientsCount,
		TotalAmount:                common.FormatTokenAmount(j.TotalAmount, j.TokenDecimals),
		NewAccountsCount:           j.NewAccountsCount,
		ExistingAccountsCount:      j.ExistingAccountsCount,
		SentCount:                  j.SentCount,
		FailedCount:                j.FailedCount,
		RefundTransactionSignature: j.RefundTransactionSignature,
		RefundError:                j.RefundError,
	}
}

func ResDistributionListFromApp(list []app.DistributionJob) []ResDistribution {
	res := make([]ResDistribution, len(list))
	for i := range list {
		res[i] = ResDistributionFromApp(&list[i])
	}
	return res
}

func ResTransactionFromApp(j *app.DistributionJob) ResTransaction {
	res := ResTransaction{
		ResDistribution: ResDistributionFromApp(j),
		Recipients:      make([]ResRecipient, len(j.Recipients)),
	}
	for i, r := range j.Recipients {
		res.Recipients[i] = ResRecipient{
			Wallet:               r.WalletAddress,
			TokenAccount:         r.TokenAccount,
			Amount:               common.FormatTokenAmount(r.Amount, j.TokenDecimals),
			BaseUnits:            r.Amount,
			Status:               r.Status,
			NeedsAccount:         r.NeedsAccount,
			TransactionSignature: r.TransactionSignature,
			ErrorKind:            r.ErrorKind,
			Error:                r.Error,
		}
	}
	return res
}

func ResTokenOrderFromApp(j *app.DistributionJob) ResTokenOrder {
	res := ResTokenOrder{
		ID:              j.ID,
		Status:          j.Status,
		Done:            j.Status.IsTerminal(),
		Total:           len(j.Recipients),
		Signatures:      []common.Signature{},
		RefundSignature: j.RefundTransactionSignature,
	}

	seen := map[common.Signature]bool{}
	for _, r := range j.Recipients {
		switch r.Status {
		case common.RecipientStatusSent:
			res.Sent++
		case common.RecipientStatusFailed:
			res.Failed++
		default:
			res.Pending++
		}
		if !r.TransactionSignature.IsEmpty() && !seen[r.TransactionSignature] {
			seen[r.TransactionSignature] = true
			res.Signatures = append(res.Signatures, r.TransactionSignature)
		}
	}

	return res
}

func ResTokenListFromApp(list []app.TokenSummary) []ResToken {
	res := make([]ResToken, len(list))
	for i, t := range list {
		res[i] = ResToken{
			TokenAddress: t.TokenAddress,
			TokenSymbol:  t.TokenSymbol,
			TokenName:    t.TokenName,
			Decimals:     t.TokenDecimals,
			Jobs:         t.Jobs,
			Recipients:   t.Recipients,
			TotalAmount:  common.FormatTokenAmount(t.TotalAmount, t.TokenDecimals),
			Sent:         t.Sent,
			Failed:       t.Failed,
			LastJobID:    t.LastJobID,
			LastStatus:   t.LastStatus,
		}
	}
	return res
}
