package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"GiftSend/internal/models"
)

type PgStore struct {
	Pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS email_lists (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	file_path    TEXT NOT NULL DEFAULT '',
	emails       JSONB NOT NULL,
	total_emails INTEGER NOT NULL DEFAULT 0,
	valid_emails INTEGER NOT NULL DEFAULT 0,
	uploaded_at  TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS email_lists_user_uploaded_idx ON email_lists (user_id, uploaded_at DESC);

CREATE TABLE IF NOT EXISTS gift_cards (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	email_list_id     TEXT NOT NULL,
	external_id       TEXT NOT NULL UNIQUE,
	provider_order_id TEXT NOT NULL,
	campaign_id       TEXT NOT NULL DEFAULT '',
	amount            INTEGER NOT NULL CHECK (amount BETWEEN 1 AND 1000),
	currency          TEXT NOT NULL DEFAULT 'USD',
	recipient_email   TEXT NOT NULL,
	recipient_name    TEXT NOT NULL DEFAULT '',
	message           TEXT NOT NULL DEFAULT '',
	subject           TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	provider_status   TEXT NOT NULL DEFAULT '',
	delivered_at      TIMESTAMPTZ,
	failure_reason    TEXT NOT NULL DEFAULT '',
	mock              BOOLEAN NOT NULL DEFAULT FALSE,
	retry_count       INTEGER NOT NULL DEFAULT 0,
	last_status_check TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS gift_cards_user_created_idx ON gift_cards (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS gift_cards_status_idx ON gift_cards (status);
CREATE INDEX IF NOT EXISTS gift_cards_email_list_idx ON gift_cards (email_list_id);
`

func New(ctx context.Context, conn string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, err
	}

	return &PgStore{Pool: pool}, nil
}

// Migrate creates the tables if they are missing.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *PgStore) Close() {
	s.Pool.Close()
}

// ------------------------------------------------
// Batches
// ------------------------------------------------

func (s *PgStore) CreateBatch(ctx context.Context, b *models.Batch) error {
	if err := validateBatch(b); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.UploadedAt.IsZero() {
		b.UploadedAt = time.Now()
	}
	b.UpdatedAt = b.UploadedAt

	emailsJSON, err := json.Marshal(b.Recipients)
	if err != nil {
		return err
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO email_lists
		 (id, user_id, file_name, file_path, emails, total_emails, valid_emails, uploaded_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID,
		b.UserID,
		b.FileName,
		b.FilePath,
		emailsJSON,
		b.TotalEmails,
		b.ValidEmails,
		b.UploadedAt,
		b.UpdatedAt,
	)
	return err
}

const batchColumns = `id, user_id, file_name, file_path, emails, total_emails, valid_emails, uploaded_at, updated_at`

func scanBatch(row pgx.Row) (*models.Batch, error) {
	var (
		b          models.Batch
		emailsJSON []byte
	)
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.FileName,
		&b.FilePath,
		&emailsJSON,
		&b.TotalEmails,
		&b.ValidEmails,
		&b.UploadedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(emailsJSON, &b.Recipients); err != nil {
		return nil, fmt.Errorf("decode emails of list %s: %w", b.ID, err)
	}
	return &b, nil
}

func (s *PgStore) AllBatches(ctx context.Context, userID string) ([]models.Batch, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+batchColumns+` FROM email_lists
		 WHERE user_id=$1
		 ORDER BY uploaded_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PgStore) ListBatches(ctx context.Context, userID string, page, pageSize int) ([]models.BatchSummary, int, error) {
	var total int
	if err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_lists WHERE user_id=$1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT id, user_id, file_name, total_emails, valid_emails, uploaded_at
		 FROM email_lists
		 WHERE user_id=$1
		 ORDER BY uploaded_at DESC
		 LIMIT $2 OFFSET $3`,
		userID,
		pageSize,
		(page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.BatchSummary, 0, pageSize)
	for rows.Next() {
		var b models.BatchSummary
		if err := rows.Scan(&b.ID, &b.UserID, &b.FileName, &b.TotalEmails, &b.ValidEmails, &b.UploadedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (s *PgStore) GetBatch(ctx context.Context, id, userID string) (*models.Batch, error) {
	b, err := scanBatch(s.Pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM email_lists WHERE id=$1 AND user_id=$2`,
		id,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, batchNotFound(id)
	}
	return b, err
}

func (s *PgStore) ListRecipients(ctx context.Context, id, userID string, page, pageSize int) (*models.RecipientPage, error) {
	b, err := s.GetBatch(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return recipientPage(b, page, pageSize), nil
}

func (s *PgStore) DeleteBatch(ctx context.Context, id, userID string) (*models.Batch, error) {
	b, err := scanBatch(s.Pool.QueryRow(ctx,
		`DELETE FROM email_lists WHERE id=$1 AND user_id=$2
		 RETURNING `+batchColumns,
		id,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, batchNotFound(id)
	}
	return b, err
}

// UpdateRecipientStatuses rewrites the recipient list under a row lock so
// concurrent sends against the same list do not lose updates.
func (s *PgStore) UpdateRecipientStatuses(ctx context.Context, id string, emails map[string]struct{}, status models.RecipientStatus) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		var emailsJSON []byte
		err := tx.QueryRow(ctx,
			`SELECT emails FROM email_lists WHERE id=$1 FOR UPDATE`,
			id,
		).Scan(&emailsJSON)
		if errors.Is(err, pgx.ErrNoRows) {
			return batchNotFound(id)
		}
		if err != nil {
			return err
		}

		var recipients []models.Recipient
		if err := json.Unmarshal(emailsJSON, &recipients); err != nil {
			return fmt.Errorf("decode emails of list %s: %w", id, err)
		}

		updated, err := json.Marshal(models.WithStatus(recipients, emails, status))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE email_lists
			 SET emails=$1,
			     updated_at=NOW()
			 WHERE id=$2`,
			updated,
			id,
		)
		return err
	})
}

// ------------------------------------------------
// Orders
// ------------------------------------------------

const orderColumns = `id, user_id, email_list_id, external_id, provider_order_id, campaign_id,
	amount, currency, recipient_email, recipient_name, message, subject,
	status, provider_status, delivered_at, failure_reason,
	mock, retry_count, last_status_check, created_at, updated_at`

func scanOrder(row pgx.Row) (*models.OrderRecord, error) {
	var r models.OrderRecord
	err := row.Scan(
		&r.ID,
		&r.UserID,
		&r.BatchID,
		&r.ExternalID,
		&r.ProviderOrderID,
		&r.CampaignID,
		&r.Amount,
		&r.Currency,
		&r.RecipientEmail,
		&r.RecipientName,
		&r.Message,
		&r.Subject,
		&r.Status,
		&r.ProviderStatus,
		&r.DeliveredAt,
		&r.FailureReason,
		&r.Mock,
		&r.RetryCount,
		&r.LastStatusCheck,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectOrders(rows pgx.Rows) ([]models.OrderRecord, error) {
	defer rows.Close()

	var out []models.OrderRecord
	for rows.Next() {
		r, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// InsertOrders writes all records in one transaction.
func (s *PgStore) InsertOrders(ctx context.Context, records []models.OrderRecord) error {
	for i := range records {
		if err := validateOrder(&records[i]); err != nil {
			return err
		}
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
	}

	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(
				`INSERT INTO gift_cards (`+orderColumns+`)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
				r.ID,
				r.UserID,
				r.BatchID,
				r.ExternalID,
				r.ProviderOrderID,
				r.CampaignID,
				r.Amount,
				r.Currency,
				r.RecipientEmail,
				r.RecipientName,
				r.Message,
				r.Subject,
				r.Status,
				r.ProviderStatus,
				r.DeliveredAt,
				r.FailureReason,
				r.Mock,
				r.RetryCount,
				r.LastStatusCheck,
				r.CreatedAt,
				r.UpdatedAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PgStore) AllOrders(ctx context.Context, userID string) ([]models.OrderRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM gift_cards
		 WHERE user_id=$1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (s *PgStore) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.OrderRecord, int, error) {
	var total int
	if err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM gift_cards WHERE user_id=$1`,
		userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM gift_cards
		 WHERE user_id=$1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID,
		pageSize,
		(page-1)*pageSize,
	)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectOrders(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *PgStore) GetOrder(ctx context.Context, id, userID string) (*models.OrderRecord, error) {
	r, err := scanOrder(s.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM gift_cards WHERE id=$1 AND user_id=$2`,
		id,
		userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orderNotFound(id)
	}
	return r, err
}

func (s *PgStore) UpdateOrder(ctx context.Context, rec *models.OrderRecord, prev models.OrderStatus) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE gift_cards
		 SET status=$1,
		     provider_status=$2,
		     delivered_at=$3,
		     failure_reason=$4,
		     retry_count=$5,
		     last_status_check=$6,
		     updated_at=$7
		 WHERE id=$8 AND status=$9`,
		rec.Status,
		rec.ProviderStatus,
		rec.DeliveredAt,
		rec.FailureReason,
		rec.RetryCount,
		rec.LastStatusCheck,
		rec.UpdatedAt,
		rec.ID,
		prev,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM gift_cards WHERE id=$1)`,
		rec.ID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return orderNotFound(rec.ID)
	}
	return models.ErrStatusChanged
}

// OpenOrders returns non-mock orders still awaiting a final provider
// status, least recently checked first.
func (s *PgStore) OpenOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM gift_cards
		 WHERE status IN ($1, $2) AND NOT mock
		 ORDER BY last_status_check ASC NULLS FIRST
		 LIMIT NULLIF($3, 0)`,
		models.OrderPending,
		models.OrderProcessing,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
