package models

import "time"

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient is one email/name pair recovered from an uploaded spreadsheet.
type Recipient struct {
	Email  string          `json:"email"`
	Name   string          `json:"name"`
	Status RecipientStatus `json:"status"`
}

// Batch is the persisted result of extracting one uploaded file.
type Batch struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	FileName string `json:"fileName"`
	FilePath string `json:"-"`

	Recipients  []Recipient `json:"emails,omitempty"`
	TotalEmails int         `json:"totalEmails"`
	ValidEmails int         `json:"validEmails"`

	UploadedAt time.Time `json:"uploadedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Summary drops the recipient list.
func (b *Batch) Summary() BatchSummary {
	return BatchSummary{
		ID:          b.ID,
		UserID:      b.UserID,
		FileName:    b.FileName,
		TotalEmails: b.TotalEmails,
		ValidEmails: b.ValidEmails,
		UploadedAt:  b.UploadedAt,
	}
}

type BatchSummary struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	FileName    string    `json:"fileName"`
	TotalEmails int       `json:"totalEmails"`
	ValidEmails int       `json:"validEmails"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// WithStatus returns a copy of recipients where every email in emails
// has its status replaced. Others are left untouched.
func WithStatus(recipients []Recipient, emails map[string]struct{}, status RecipientStatus) []Recipient {
	out := make([]Recipient, len(recipients))
	for i, r := range recipients {
		if _, ok := emails[r.Email]; ok {
			r.Status = status
		}
		out[i] = r
	}
	return out
}

// RecipientPage is one page of a batch's recipients in stored order.
type RecipientPage struct {
	Batch      BatchSummary
	Recipients []Recipient
	Total      int
}
