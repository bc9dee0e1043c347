package orders

import (
	"sort"

	"GiftSend/internal/models"
)

type Stats struct {
	TotalGiftCards  int `json:"totalGiftCards"`
	TotalAmount     int `json:"totalAmount"`
	PendingCount    int `json:"pendingCount"`
	ProcessingCount int `json:"processingCount"`
	DeliveredCount  int `json:"deliveredCount"`
	FailedCount     int `json:"failedCount"`
	CancelledCount  int `json:"cancelledCount"`
	DeliveredAmount int `json:"deliveredAmount"`
}

// Summarize aggregates a user's orders.
func Summarize(records []models.OrderRecord) Stats {
	var s Stats
	for _, r := range records {
		s.TotalGiftCards++
		s.TotalAmount += r.Amount

		switch r.Status {
		case models.OrderPending:
			s.PendingCount++
		case models.OrderProcessing:
			s.ProcessingCount++
		case models.OrderDelivered:
			s.DeliveredCount++
			s.DeliveredAmount += r.Amount
		case models.OrderFailed:
			s.FailedCount++
		case models.OrderCancelled:
			s.CancelledCount++
		}
	}
	return s
}

// Recent returns up to n records, newest first.
func Recent(records []models.OrderRecord, n int) []models.OrderRecord {
	out := make([]models.OrderRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
