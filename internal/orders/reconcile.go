package orders

import (
	"time"

	"GiftSend/internal/giftogram"
	"GiftSend/internal/models"
)

const unknownFailure = "Unknown error"

// MapProviderStatus translates the provider's (case-sensitive) vocabulary.
// ok is false for statuses that must leave the record unchanged.
func MapProviderStatus(providerStatus string) (status models.OrderStatus, ok bool) {
	switch providerStatus {
	case "delivered", "sent":
		return models.OrderDelivered, true
	case "failed", "error":
		return models.OrderFailed, true
	case "processing", "pending":
		return models.OrderProcessing, true
	case "cancelled":
		return models.OrderCancelled, true
	}
	return "", false
}

// ApplyProviderStatus returns rec updated from the provider's view of the order.
// LastStatusCheck is always set to now. Terminal records keep their status;
// re-applying the payload that made them terminal is a no-op.
func ApplyProviderStatus(rec models.OrderRecord, st giftogram.OrderStatus, now time.Time) models.OrderRecord {
	rec.ProviderStatus = st.Status
	rec.LastStatusCheck = &now
	rec.UpdatedAt = now

	next, ok := MapProviderStatus(st.Status)
	if !ok {
		return rec
	}
	if rec.Status.Terminal() && next != rec.Status {
		return rec
	}

	switch next {
	case models.OrderDelivered:
		if rec.DeliveredAt == nil || st.DeliveredAt != "" {
			at := parseProviderTime(st.DeliveredAt, now)
			rec.DeliveredAt = &at
		}
	case models.OrderFailed:
		rec.FailureReason = st.FailureReason
		if rec.FailureReason == "" {
			rec.FailureReason = unknownFailure
		}
	}
	rec.Status = next

	return rec
}

func parseProviderTime(v string, fallback time.Time) time.Time {
	if v == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return fallback
}
