// Package extractor recovers email/name pairs from arbitrary spreadsheet layouts.
//
// A document is scanned cell by cell. Any string cell that matches the email
// grammar becomes a recipient; the display name is guessed from neighbouring
// cells of the same row.
package extractor

import (
	"errors"
	"regexp"
	"strings"

	"GiftSend/internal/models"
)

// ErrNoEmails is returned when a document parsed fine but held no addresses.
var ErrNoEmails = errors.New("no valid email addresses found in the uploaded file")

var emailPattern = regexp.MustCompile(`^(([^<>()[\]\\.,;:\s@"]+(\.[^<>()[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

var textEmailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

type CellKind int

const (
	Blank CellKind = iota
	String
	Number
)

type Cell struct {
	Value string
	Kind  CellKind
}

func (c Cell) text() string {
	if c.Kind == Blank {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

type Sheet struct {
	Name string
	Rows [][]Cell
}

type Document struct {
	Sheets []Sheet
}

type Result struct {
	Emails      []models.Recipient `json:"emails" yaml:"emails"`
	TotalEmails int                `json:"totalEmails" yaml:"totalEmails"`
	ValidEmails int                `json:"validEmails" yaml:"validEmails"`
}

// IsValidEmail reports whether s matches the strict email grammar.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Extract scans every cell of every sheet. The first occurrence of an address wins.
func Extract(doc Document) Result {
	seen := make(map[string]struct{})
	emails := make([]models.Recipient, 0)

	for _, sheet := range doc.Sheets {
		for _, row := range sheet.Rows {
			for col, cell := range row {
				if cell.Kind != String {
					continue
				}
				candidate := strings.TrimSpace(cell.Value)
				if !IsValidEmail(candidate) {
					continue
				}

				email := strings.ToLower(candidate)
				if _, dup := seen[email]; dup {
					continue
				}
				seen[email] = struct{}{}

				emails = append(emails, models.Recipient{
					Email:  email,
					Name:   guessName(row, col),
					Status: models.RecipientPending,
				})
			}
		}
	}

	return summarize(emails)
}

// guessName tries the left neighbour, then the right one, then the first
// column of the row. Cells that look like emails are never names.
func guessName(row []Cell, col int) string {
	if col > 0 {
		if name := nameCandidate(row[col-1]); name != "" {
			return name
		}
	}
	if col < len(row)-1 {
		if name := nameCandidate(row[col+1]); name != "" {
			return name
		}
	}
	if col > 0 && len(row) > 0 {
		return nameCandidate(row[0])
	}
	return ""
}

func nameCandidate(c Cell) string {
	v := c.text()
	if v == "" || IsValidEmail(v) {
		return ""
	}
	return v
}

// ExtractFromText finds addresses in unstructured text. Names are never guessed.
func ExtractFromText(text string) Result {
	seen := make(map[string]struct{})
	emails := make([]models.Recipient, 0)

	for _, m := range textEmailPattern.FindAllString(text, -1) {
		email := strings.ToLower(m)
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		emails = append(emails, models.Recipient{Email: email, Status: models.RecipientPending})
	}

	return summarize(emails)
}

// summarize counts ValidEmails by re-running the strict grammar. For cell
// extraction that always equals TotalEmails.
func summarize(emails []models.Recipient) Result {
	valid := 0
	for _, r := range emails {
		if IsValidEmail(r.Email) {
			valid++
		}
	}
	return Result{
		Emails:      emails,
		TotalEmails: len(emails),
		ValidEmails: valid,
	}
}
