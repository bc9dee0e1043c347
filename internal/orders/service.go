package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"GiftSend/internal/giftogram"
	"GiftSend/internal/metrics"
	"GiftSend/internal/models"
)

type Provider interface {
	Submitter
	GetOrderStatus(ctx context.Context, providerOrderID string) (*giftogram.OrderStatus, error)
	ListCampaigns(ctx context.Context) ([]giftogram.Campaign, error)
}

type BatchStore interface {
	GetBatch(ctx context.Context, id, userID string) (*models.Batch, error)
	UpdateRecipientStatuses(ctx context.Context, id string, emails map[string]struct{}, status models.RecipientStatus) error
}

type OrderStore interface {
	InsertOrders(ctx context.Context, records []models.OrderRecord) error
	ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.OrderRecord, int, error)
	AllOrders(ctx context.Context, userID string) ([]models.OrderRecord, error)
	GetOrder(ctx context.Context, id, userID string) (*models.OrderRecord, error)
	UpdateOrder(ctx context.Context, rec *models.OrderRecord, prev models.OrderStatus) error
	OpenOrders(ctx context.Context, limit int) ([]models.OrderRecord, error)
}

// Notifier is told about every finished bulk send.
type Notifier interface {
	NotifyBulk(ctx context.Context, n BulkNotice) error
}

type BulkNotice struct {
	UserID   string
	BatchID  string
	FileName string
	Amount   int
	Result   BulkResult
}

type SendRequest struct {
	BatchID        string   `json:"emailListId"`
	SelectedEmails []string `json:"selectedEmails"`
	Amount         int      `json:"amount"`
	Message        string   `json:"message"`
	CampaignID     string   `json:"campaignId"`
}

type SendResult struct {
	BulkResult
	TotalAmount int `json:"totalAmount"`
}

type History struct {
	GiftCards  []models.OrderRecord `json:"giftCards"`
	Pagination models.Pagination    `json:"pagination"`
}

// persistTimeout bounds saving a finished bulk send once the request that
// started it is gone.
const persistTimeout = 30 * time.Second

// ErrShuttingDown is returned by Send once Shutdown has been called.
var ErrShuttingDown = errors.New("gift card service is shutting down")

type Service struct {
	provider     Provider
	orchestrator *Orchestrator
	batches      BatchStore
	orders       OrderStore
	notifier     Notifier
	log          *zap.Logger
	now          func() time.Time

	// Bulk sends run on sendCtx, not the request context: a client
	// disconnect or request timeout never stops a batch, Shutdown does.
	sendCtx   context.Context
	stopSends context.CancelFunc
	mu        sync.Mutex
	closed    bool
	inflight  sync.WaitGroup
}

func NewService(
	provider Provider,
	orchestrator *Orchestrator,
	batches BatchStore,
	orders OrderStore,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	sendCtx, stopSends := context.WithCancel(context.Background())
	return &Service{
		provider:     provider,
		orchestrator: orchestrator,
		batches:      batches,
		orders:       orders,
		notifier:     notifier,
		log:          logger.Named("orders"),
		now:          time.Now,
		sendCtx:      sendCtx,
		stopSends:    stopSends,
	}
}

func (s *Service) beginSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Shutdown stops running bulk sends after their current recipient and waits
// until what they completed is saved, or ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stopSends()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateSend(req SendRequest) error {
	if req.BatchID == "" || req.SelectedEmails == nil || req.Amount == 0 {
		return &models.ValidationError{Message: "Please provide emailListId, selectedEmails, and amount"}
	}
	if len(req.SelectedEmails) == 0 {
		return &models.ValidationError{Message: "Please select at least one email address", Fields: []string{"selectedEmails"}}
	}
	if !models.ValidAmount(req.Amount) {
		return &models.ValidationError{
			Message: fmt.Sprintf("Amount must be between $%d and $%d", models.MinAmount, models.MaxAmount),
			Fields:  []string{"amount"},
		}
	}
	if utf8.RuneCountInString(req.Message) > models.MaxMessageLength {
		return &models.ValidationError{
			Message: fmt.Sprintf("Message must be at most %d characters", models.MaxMessageLength),
			Fields:  []string{"message"},
		}
	}
	return nil
}

// Send orders gift cards for the selected recipients of a batch. Whatever
// succeeded is persisted; every selected recipient is marked sent.
func (s *Service) Send(ctx context.Context, userID string, req SendRequest) (*SendResult, error) {
	if err := validateSend(req); err != nil {
		return nil, err
	}
	if !s.beginSend() {
		return nil, ErrShuttingDown
	}
	defer s.inflight.Done()

	batch, err := s.batches.GetBatch(ctx, req.BatchID, userID)
	if err != nil {
		return nil, err
	}

	selected := make(map[string]struct{}, len(req.SelectedEmails))
	for _, e := range req.SelectedEmails {
		selected[e] = struct{}{}
	}

	var recipients []models.Recipient
	for _, r := range batch.Recipients {
		if _, ok := selected[r.Email]; ok {
			recipients = append(recipients, r)
		}
	}
	if len(recipients) == 0 {
		return nil, &models.ValidationError{Message: "No valid email addresses found in selection", Fields: []string{"selectedEmails"}}
	}

	message := req.Message
	if message == "" {
		message = models.DefaultMessage
	}

	res := s.orchestrator.ProcessBulk(s.sendCtx, recipients, req.Amount, message, req.CampaignID)

	// ----------------------------
	// Persist successful orders
	// ----------------------------
	// Orders already placed with the provider are saved even when the
	// caller has gone away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	now := s.now()
	records := make([]models.OrderRecord, 0, len(res.Results))
	for _, ok := range res.Results {
		name := ok.Name
		if name == "" {
			name = strings.SplitN(ok.Email, "@", 2)[0]
		}
		providerStatus := ok.ProviderStatus
		if providerStatus == "" {
			providerStatus = string(models.OrderPending)
		}
		campaignID := req.CampaignID
		if campaignID == "" {
			campaignID = ok.CampaignID
		}

		records = append(records, models.OrderRecord{
			ID:              uuid.NewString(),
			UserID:          userID,
			BatchID:         batch.ID,
			ExternalID:      ok.ExternalID,
			ProviderOrderID: ok.OrderID,
			CampaignID:      campaignID,
			Amount:          req.Amount,
			Currency:        models.DefaultCurrency,
			RecipientEmail:  ok.Email,
			RecipientName:   name,
			Message:         message,
			Subject:         models.DefaultSubject,
			Status:          models.OrderPending,
			ProviderStatus:  providerStatus,
			Mock:            strings.HasPrefix(ok.OrderID, "mock-"),
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	if len(records) > 0 {
		if err := s.orders.InsertOrders(ctx, records); err != nil {
			return nil, fmt.Errorf("save gift card records: %w", err)
		}
	}

	// Selection intent is recorded even for recipients whose order failed.
	if err := s.batches.UpdateRecipientStatuses(ctx, batch.ID, selected, models.RecipientSent); err != nil {
		return nil, fmt.Errorf("update recipient statuses: %w", err)
	}

	if s.notifier != nil {
		notice := BulkNotice{UserID: userID, BatchID: batch.ID, FileName: batch.FileName, Amount: req.Amount, Result: res}
		if err := s.notifier.NotifyBulk(ctx, notice); err != nil {
			s.log.Warn("bulk summary notification failed", zap.String("batch_id", batch.ID), zap.Error(err))
		}
	}

	return &SendResult{
		BulkResult:  res,
		TotalAmount: res.Successful * req.Amount,
	}, nil
}

// Campaigns passes the provider's campaign list through.
func (s *Service) Campaigns(ctx context.Context) ([]giftogram.Campaign, error) {
	return s.provider.ListCampaigns(ctx)
}

// History returns a page of the user's orders, newest first.
func (s *Service) History(ctx context.Context, userID string, page, pageSize int) (*History, error) {
	page, pageSize = models.NormalizePage(page, pageSize, 20)

	records, total, err := s.orders.ListOrders(ctx, userID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return &History{
		GiftCards:  records,
		Pagination: models.NewPagination(page, pageSize, total),
	}, nil
}

// Stats aggregates all of the user's orders and returns the n most recent.
func (s *Service) Stats(ctx context.Context, userID string, recent int) (Stats, []models.OrderRecord, error) {
	records, err := s.orders.AllOrders(ctx, userID)
	if err != nil {
		return Stats{}, nil, fmt.Errorf("load orders: %w", err)
	}
	return Summarize(records), Recent(records, recent), nil
}

// RefreshStatus reconciles one order against the provider. Provider and
// storage failures are logged and the last stored record is returned.
func (s *Service) RefreshStatus(ctx context.Context, userID, id string) (*models.OrderRecord, error) {
	rec, err := s.orders.GetOrder(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if rec.Mock {
		metrics.Reconciliations.WithLabelValues("skipped").Inc()
		return rec, nil
	}
	return s.reconcile(ctx, rec), nil
}

func (s *Service) reconcile(ctx context.Context, rec *models.OrderRecord) *models.OrderRecord {
	st, err := s.provider.GetOrderStatus(ctx, rec.ProviderOrderID)
	if err != nil {
		metrics.Reconciliations.WithLabelValues("provider_error").Inc()
		s.log.Warn("order status refresh failed",
			zap.String("order_id", rec.ID),
			zap.String("provider_order_id", rec.ProviderOrderID),
			zap.Error(err),
		)
		return rec
	}

	updated := ApplyProviderStatus(*rec, *st, s.now())
	err = s.orders.UpdateOrder(ctx, &updated, rec.Status)
	if errors.Is(err, models.ErrStatusChanged) {
		// Cancelled or refreshed while the provider was answering; the
		// stored record wins.
		metrics.Reconciliations.WithLabelValues("conflict").Inc()
		s.log.Info("order changed during refresh, keeping stored record", zap.String("order_id", rec.ID))
		current, err := s.orders.GetOrder(ctx, rec.ID, rec.UserID)
		if err != nil {
			return rec
		}
		return current
	}
	if err != nil {
		metrics.Reconciliations.WithLabelValues("store_error").Inc()
		s.log.Error("failed to save refreshed order", zap.String("order_id", rec.ID), zap.Error(err))
		return rec
	}

	if updated.Status != rec.Status {
		s.log.Info("order status changed",
			zap.String("order_id", rec.ID),
			zap.String("from", string(rec.Status)),
			zap.String("to", string(updated.Status)),
		)
	}
	metrics.Reconciliations.WithLabelValues("ok").Inc()
	return &updated
}

// cancelAttempts bounds retries when a refresh races a cancel.
const cancelAttempts = 3

// Cancel marks an order cancelled locally. The provider is not contacted.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*models.OrderRecord, error) {
	for attempt := 0; ; attempt++ {
		rec, err := s.orders.GetOrder(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if rec.Status == models.OrderDelivered {
			return nil, &models.ValidationError{Message: "Cannot cancel a delivered gift card"}
		}

		prev := rec.Status
		rec.Status = models.OrderCancelled
		rec.UpdatedAt = s.now()
		err = s.orders.UpdateOrder(ctx, rec, prev)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, models.ErrStatusChanged) || attempt+1 == cancelAttempts {
			return nil, fmt.Errorf("cancel order: %w", err)
		}
	}
}

// Sweep reconciles up to limit open orders and returns how many were checked.
func (s *Service) Sweep(ctx context.Context, limit int) (int, error) {
	open, err := s.orders.OpenOrders(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}

	checked := 0
	for i := range open {
		if ctx.Err() != nil {
			break
		}
		s.reconcile(ctx, &open[i])
		checked++
	}
	return checked, nil
}

// RunReconciler sweeps open orders every interval until ctx is done.
func (s *Service) RunReconciler(ctx context.Context, interval time.Duration, limit int) {
	s.log.Info("reconciler started", zap.Duration("interval", interval), zap.Int("batch", limit))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("reconciler shutting down")
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx, limit)
			if err != nil {
				s.log.Error("reconciliation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("reconciliation sweep finished", zap.Int("checked", n))
			}
		}
	}
}
