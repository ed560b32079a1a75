package common

type JobStatus string
type RecipientStatus string
type BatchState string

const (
	JobStatusPending         JobStatus = "PENDING"
	JobStatusProcessing      JobStatus = "PROCESSING"
	JobStatusPartiallyFailed JobStatus = "PARTIALLY_FAILED"
	JobStatusCompleted       JobStatus = "COMPLETED"
	JobStatusFailed          JobStatus = "FAILED"
)

const (
	RecipientStatusPending        RecipientStatus = "PENDING"
	RecipientStatusAccountCreated RecipientStatus = "ACCOUNT_CREATED"
	RecipientStatusSent           RecipientStatus = "SENT"
	RecipientStatusFailed         RecipientStatus = "FAILED"
)

const (
	BatchStateBuilt     BatchState = "BUILT"
	BatchStateSigned    BatchState = "SIGNED"
	BatchStateSubmitted BatchState = "SUBMITTED"
	BatchStateConfirmed BatchState = "CONFIRMED"
	BatchStateFailed    BatchState = "FAILED"
)

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusPartiallyFailed:
		return true
	}
	return false
}

func (s RecipientStatus) IsTerminal() bool {
	return s == RecipientStatusSent || s == RecipientStatusFailed
}

func (s BatchState) IsTerminal() bool {
	return s == BatchStateConfirmed || s == BatchStateFailed
}
