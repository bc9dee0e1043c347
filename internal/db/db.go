package db

import (
	"context"
	"fmt"
	"strings"

	"GiftSend/internal/models"
)

// Store persists extraction batches and gift card orders.
type Store interface {
	CreateBatch(ctx context.Context, b *models.Batch) error
	ListBatches(ctx context.Context, userID string, page, pageSize int) ([]models.BatchSummary, int, error)
	AllBatches(ctx context.Context, userID string) ([]models.Batch, error)
	GetBatch(ctx context.Context, id, userID string) (*models.Batch, error)
	ListRecipients(ctx context.Context, id, userID string, page, pageSize int) (*models.RecipientPage, error)
	DeleteBatch(ctx context.Context, id, userID string) (*models.Batch, error)
	UpdateRecipientStatuses(ctx context.Context, id string, emails map[string]struct{}, status models.RecipientStatus) error

	InsertOrders(ctx context.Context, records []models.OrderRecord) error
	ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.OrderRecord, int, error)
	AllOrders(ctx context.Context, userID string) ([]models.OrderRecord, error)
	GetOrder(ctx context.Context, id, userID string) (*models.OrderRecord, error)
	// UpdateOrder writes rec only while the stored status is still prev.
	UpdateOrder(ctx context.Context, rec *models.OrderRecord, prev models.OrderStatus) error
	OpenOrders(ctx context.Context, limit int) ([]models.OrderRecord, error)

	Ping(ctx context.Context) error
	Close()
}

// Open picks a backend from the URL scheme: postgres:// or postgresql://
// for Postgres, bolt:// for an embedded file.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		store, err := New(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case strings.HasPrefix(url, "bolt://"):
		store, err := NewBolt(strings.TrimPrefix(url, "bolt://"))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", url)
}

func validateBatch(b *models.Batch) error {
	if len(b.Recipients) == 0 {
		return &models.ValidationError{Message: "Email list must contain at least one email", Fields: []string{"emails"}}
	}
	if b.UserID == "" {
		return &models.ValidationError{Message: "Missing required fields", Fields: []string{"userId"}}
	}
	return nil
}

func validateOrder(r *models.OrderRecord) error {
	var missing []string
	if r.ExternalID == "" {
		missing = append(missing, "externalId")
	}
	if r.ProviderOrderID == "" {
		missing = append(missing, "giftogramOrderId")
	}
	if r.RecipientEmail == "" {
		missing = append(missing, "recipientEmail")
	}
	if len(missing) > 0 {
		return &models.ValidationError{Message: "Missing required fields", Fields: missing}
	}
	if !models.ValidAmount(r.Amount) {
		return &models.ValidationError{Message: "Amount out of range", Fields: []string{"amount"}}
	}
	return nil
}

func batchNotFound(id string) error {
	return &models.NotFoundError{Resource: "email list", ID: id}
}

func orderNotFound(id string) error {
	return &models.NotFoundError{Resource: "gift card", ID: id}
}

func recipientPage(b *models.Batch, page, pageSize int) *models.RecipientPage {
	start, end := models.Window(page, pageSize, len(b.Recipients))
	recipients := make([]models.Recipient, end-start)
	copy(recipients, b.Recipients[start:end])
	return &models.RecipientPage{
		Batch:      b.Summary(),
		Recipients: recipients,
		Total:      len(b.Recipients),
	}
}
