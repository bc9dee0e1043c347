package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"GiftSend/internal/models"
)

var (
	bucketBatches     = []byte("email_lists")
	bucketOrders      = []byte("gift_cards")
	bucketExternalIDs = []byte("gift_cards_by_external_id")
)

// boltBatch carries the upload path, which the API representation hides.
type boltBatch struct {
	models.Batch
	FilePath string `json:"filePath"`
}

// BoltStore keeps everything in a single bbolt file. Every write is one
// bbolt transaction, so batch updates are atomic for readers.
type BoltStore struct {
	db *bolt.DB
}

func NewBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBatches, bucketOrders, bucketExternalIDs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error { return nil })
}

func (s *BoltStore) Close() {
	s.db.Close()
}

// ------------------------------------------------
// Batches
// ------------------------------------------------

func (s *BoltStore) CreateBatch(ctx context.Context, b *models.Batch) error {
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

	return s.db.Update(func(tx *bolt.Tx) error {
		return putBatch(tx, b)
	})
}

func putBatch(tx *bolt.Tx, b *models.Batch) error {
	return putJSON(tx.Bucket(bucketBatches), b.ID, boltBatch{Batch: *b, FilePath: b.FilePath})
}

func decodeBatch(data []byte) (models.Batch, error) {
	var stored boltBatch
	if err := json.Unmarshal(data, &stored); err != nil {
		return models.Batch{}, err
	}
	b := stored.Batch
	b.FilePath = stored.FilePath
	return b, nil
}

func (s *BoltStore) loadBatch(tx *bolt.Tx, id string) (*models.Batch, error) {
	data := tx.Bucket(bucketBatches).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	b, err := decodeBatch(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal email list %s: %w", id, err)
	}
	return &b, nil
}

func (s *BoltStore) AllBatches(ctx context.Context, userID string) ([]models.Batch, error) {
	var out []models.Batch
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBatches).ForEach(func(k, v []byte) error {
			b, err := decodeBatch(v)
			if err != nil {
				return fmt.Errorf("failed to unmarshal email list %s: %w", k, err)
			}
			if b.UserID == userID {
				out = append(out, b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (s *BoltStore) ListBatches(ctx context.Context, userID string, page, pageSize int) ([]models.BatchSummary, int, error) {
	all, err := s.AllBatches(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	start, end := models.Window(page, pageSize, len(all))
	out := make([]models.BatchSummary, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, all[i].Summary())
	}
	return out, len(all), nil
}

func (s *BoltStore) GetBatch(ctx context.Context, id, userID string) (*models.Batch, error) {
	var b *models.Batch
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		b, err = s.loadBatch(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if b == nil || b.UserID != userID {
		return nil, batchNotFound(id)
	}
	return b, nil
}

func (s *BoltStore) ListRecipients(ctx context.Context, id, userID string, page, pageSize int) (*models.RecipientPage, error) {
	b, err := s.GetBatch(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return recipientPage(b, page, pageSize), nil
}

func (s *BoltStore) DeleteBatch(ctx context.Context, id, userID string) (*models.Batch, error) {
	var deleted *models.Batch
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.loadBatch(tx, id)
		if err != nil {
			return err
		}
		if b == nil || b.UserID != userID {
			return batchNotFound(id)
		}
		deleted = b
		return tx.Bucket(bucketBatches).Delete([]byte(id))
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *BoltStore) UpdateRecipientStatuses(ctx context.Context, id string, emails map[string]struct{}, status models.RecipientStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.loadBatch(tx, id)
		if err != nil {
			return err
		}
		if b == nil {
			return batchNotFound(id)
		}
		b.Recipients = models.WithStatus(b.Recipients, emails, status)
		b.UpdatedAt = time.Now()
		return putBatch(tx, b)
	})
}

// ------------------------------------------------
// Orders
// ------------------------------------------------

func (s *BoltStore) InsertOrders(ctx context.Context, records []models.OrderRecord) error {
	for i := range records {
		if err := validateOrder(&records[i]); err != nil {
			return err
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		orders := tx.Bucket(bucketOrders)
		byExternal := tx.Bucket(bucketExternalIDs)

		for i := range records {
			rec := &records[i]
			if rec.ID == "" {
				rec.ID = uuid.NewString()
			}
			if byExternal.Get([]byte(rec.ExternalID)) != nil {
				return fmt.Errorf("duplicate external id %s", rec.ExternalID)
			}
			if err := putJSON(orders, rec.ID, rec); err != nil {
				return err
			}
			if err := byExternal.Put([]byte(rec.ExternalID), []byte(rec.ID)); err != nil {
				return fmt.Errorf("failed to index external id: %w", err)
			}
		}
		return nil
	})
}

func (s *BoltStore) scanOrders(keep func(*models.OrderRecord) bool) ([]models.OrderRecord, error) {
	var out []models.OrderRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketOrders).ForEach(func(k, v []byte) error {
			var rec models.OrderRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal gift card %s: %w", k, err)
			}
			if keep(&rec) {
				out = append(out, rec)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) AllOrders(ctx context.Context, userID string) ([]models.OrderRecord, error) {
	out, err := s.scanOrders(func(r *models.OrderRecord) bool { return r.UserID == userID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *BoltStore) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.OrderRecord, int, error) {
	all, err := s.AllOrders(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	start, end := models.Window(page, pageSize, len(all))
	return all[start:end], len(all), nil
}

func (s *BoltStore) GetOrder(ctx context.Context, id, userID string) (*models.OrderRecord, error) {
	var rec *models.OrderRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketOrders).Get([]byte(id))
		if data == nil {
			return nil
		}
		rec = &models.OrderRecord{}
		return json.Unmarshal(data, rec)
	})
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UserID != userID {
		return nil, orderNotFound(id)
	}
	return rec, nil
}

func (s *BoltStore) UpdateOrder(ctx context.Context, rec *models.OrderRecord, prev models.OrderStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		orders := tx.Bucket(bucketOrders)
		data := orders.Get([]byte(rec.ID))
		if data == nil {
			return orderNotFound(rec.ID)
		}

		var current models.OrderRecord
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("failed to decode gift card %s: %w", rec.ID, err)
		}
		if current.Status != prev {
			return models.ErrStatusChanged
		}
		return putJSON(orders, rec.ID, rec)
	})
}

func (s *BoltStore) OpenOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	out, err := s.scanOrders(func(r *models.OrderRecord) bool {
		return !r.Mock && !r.Status.Terminal()
	})
	if err != nil {
		return nil, err
	}

	// least recently checked first
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastStatusCheck, out[j].LastStatusCheck
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := b.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
