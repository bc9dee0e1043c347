package recipients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GiftSend/internal/extractor"
	"GiftSend/internal/metrics"
	"GiftSend/internal/models"
)

const (
	PreviewSize         = 10
	RecentUploads       = 5
	DefaultListSize     = 10
	DefaultRecipientLen = 50
)

type Store interface {
	CreateBatch(ctx context.Context, b *models.Batch) error
	ListBatches(ctx context.Context, userID string, page, pageSize int) ([]models.BatchSummary, int, error)
	AllBatches(ctx context.Context, userID string) ([]models.Batch, error)
	GetBatch(ctx context.Context, id, userID string) (*models.Batch, error)
	ListRecipients(ctx context.Context, id, userID string, page, pageSize int) (*models.RecipientPage, error)
	DeleteBatch(ctx context.Context, id, userID string) (*models.Batch, error)
}

// Upload is a stored batch with the first recipients as a preview.
type Upload struct {
	models.BatchSummary
	Emails []models.Recipient `json:"emails"`
}

type BatchList struct {
	EmailLists []models.BatchSummary `json:"emailLists"`
	Pagination models.Pagination     `json:"pagination"`
}

type RecipientList struct {
	Emails     []models.Recipient  `json:"emails"`
	ListInfo   models.BatchSummary `json:"listInfo"`
	Pagination models.Pagination   `json:"pagination"`
}

type UploadStats struct {
	TotalUploads     int                   `json:"totalUploads"`
	TotalEmails      int                   `json:"totalEmails"`
	TotalValidEmails int                   `json:"totalValidEmails"`
	PendingEmails    int                   `json:"pendingEmails"`
	SentEmails       int                   `json:"sentEmails"`
	FailedEmails     int                   `json:"failedEmails"`
	RecentUploads    []models.BatchSummary `json:"recentUploads"`
}

type Service struct {
	store     Store
	uploadDir string
	log       *zap.Logger
	now       func() time.Time
}

func NewService(store Store, uploadDir string, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		uploadDir: uploadDir,
		log:       logger.Named("recipients"),
		now:       time.Now,
	}
}

// Upload saves r into the upload directory, extracts its recipients and
// stores them as a new batch. The saved file is removed on any failure.
func (s *Service) Upload(ctx context.Context, userID, fileName, contentType string, r io.Reader) (*Upload, error) {
	if !extractor.Accepted(contentType) {
		metrics.UploadFailures.WithLabelValues("type").Inc()
		return nil, &models.ValidationError{
			Message: "Invalid file type. Only Excel files (.xlsx, .xls) and CSV files are allowed.",
			Fields:  []string{"excelFile"},
		}
	}

	path, err := s.save(fileName, r)
	if err != nil {
		metrics.UploadFailures.WithLabelValues("io").Inc()
		return nil, err
	}

	batch, err := s.extractAndStore(ctx, userID, fileName, contentType, path)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("failed to remove rejected upload", zap.String("path", path), zap.Error(rmErr))
		}
		return nil, err
	}

	metrics.BatchesUploaded.Inc()
	s.log.Info("email list uploaded",
		zap.String("user_id", userID),
		zap.String("list_id", batch.ID),
		zap.String("file", fileName),
		zap.Int("emails", batch.TotalEmails),
	)

	preview := batch.Recipients
	if len(preview) > PreviewSize {
		preview = preview[:PreviewSize]
	}
	return &Upload{BatchSummary: batch.Summary(), Emails: preview}, nil
}

func (s *Service) extractAndStore(ctx context.Context, userID, fileName, contentType, path string) (*models.Batch, error) {
	res, err := extractor.ExtractFile(path, contentType)
	if err != nil {
		reason := "parse"
		if errors.Is(err, extractor.ErrNoEmails) {
			reason = "empty"
		}
		metrics.UploadFailures.WithLabelValues(reason).Inc()
		return nil, err
	}

	batch := &models.Batch{
		UserID:      userID,
		FileName:    fileName,
		FilePath:    path,
		Recipients:  res.Emails,
		TotalEmails: res.TotalEmails,
		ValidEmails: res.ValidEmails,
		UploadedAt:  s.now(),
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		metrics.UploadFailures.WithLabelValues("store").Inc()
		return nil, fmt.Errorf("save email list: %w", err)
	}
	return batch, nil
}

func (s *Service) save(fileName string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := fmt.Sprintf("excelFile-%d-%s%s",
		s.now().UnixMilli(),
		strings.SplitN(uuid.NewString(), "-", 2)[0],
		strings.ToLower(filepath.Ext(fileName)),
	)
	path := filepath.Join(s.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

// List returns a page of the user's batches without their recipients.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) (*BatchList, error) {
	page, pageSize = models.NormalizePage(page, pageSize, DefaultListSize)

	lists, total, err := s.store.ListBatches(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list email lists: %w", err)
	}
	return &BatchList{
		EmailLists: lists,
		Pagination: models.NewPagination(page, pageSize, total),
	}, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Batch, error) {
	return s.store.GetBatch(ctx, id, userID)
}

// Recipients returns a page of one batch's recipients in stored order.
func (s *Service) Recipients(ctx context.Context, userID, id string, page, pageSize int) (*RecipientList, error) {
	page, pageSize = models.NormalizePage(page, pageSize, DefaultRecipientLen)

	rp, err := s.store.ListRecipients(ctx, id, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &RecipientList{
		Emails:     rp.Recipients,
		ListInfo:   rp.Batch,
		Pagination: models.NewPagination(page, pageSize, rp.Total),
	}, nil
}

// Delete removes the batch and its uploaded file. A file that is already
// gone is not an error.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	b, err := s.store.DeleteBatch(ctx, id, userID)
	if err != nil {
		return err
	}

	if b.FilePath != "" {
		if err := os.Remove(b.FilePath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to remove uploaded file", zap.String("list_id", id), zap.String("path", b.FilePath), zap.Error(err))
		}
	}

	s.log.Info("email list deleted", zap.String("user_id", userID), zap.String("list_id", id))
	return nil
}

// Stats aggregates every batch the user owns.
func (s *Service) Stats(ctx context.Context, userID string) (UploadStats, error) {
	batches, err := s.store.AllBatches(ctx, userID)
	if err != nil {
		return UploadStats{}, fmt.Errorf("load email lists: %w", err)
	}
	return Summarize(batches, RecentUploads), nil
}

// Summarize counts uploads and recipient statuses and keeps the n newest uploads.
func Summarize(batches []models.Batch, n int) UploadStats {
	st := UploadStats{
		TotalUploads:  len(batches),
		RecentUploads: make([]models.BatchSummary, 0, n),
	}

	for _, b := range batches {
		st.TotalEmails += b.TotalEmails
		st.TotalValidEmails += b.ValidEmails

		for _, r := range b.Recipients {
			switch r.Status {
			case models.RecipientPending:
				st.PendingEmails++
			case models.RecipientSent:
				st.SentEmails++
			case models.RecipientFailed:
				st.FailedEmails++
			}
		}
	}

	sorted := make([]models.Batch, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UploadedAt.After(sorted[j].UploadedAt)
	})
	for i := 0; i < len(sorted) && i < n; i++ {
		st.RecentUploads = append(st.RecentUploads, sorted[i].Summary())
	}
	return st
}
