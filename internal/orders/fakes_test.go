package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"GiftSend/internal/giftogram"
	"GiftSend/internal/models"
)

// fakeProvider implements Provider for testing
type fakeProvider struct {
	mu        sync.Mutex
	submitted []giftogram.OrderRequest
	fail      map[string]error
	statuses  map[string]*giftogram.OrderStatus
	statusErr error
	lookups   int
	seq       int

	// afterSubmit runs outside the lock after each successful order.
	afterSubmit func(n int)
	// statusEntered and statusRelease, when set, hold GetOrderStatus open.
	statusEntered chan struct{}
	statusRelease chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		fail:     map[string]error{},
		statuses: map[string]*giftogram.OrderStatus{},
	}
}

func (p *fakeProvider) SubmitOrder(ctx context.Context, req giftogram.OrderRequest) (*giftogram.Order, error) {
	p.mu.Lock()
	p.submitted = append(p.submitted, req)
	if err, ok := p.fail[req.RecipientEmail]; ok {
		p.mu.Unlock()
		return nil, err
	}
	p.seq++
	n := p.seq
	hook := p.afterSubmit
	p.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return &giftogram.Order{
		ProviderOrderID: fmt.Sprintf("ord-%d", n),
		ExternalID:      fmt.Sprintf("GC-1-%09d", n),
		ProviderStatus:  "pending",
		CampaignID:      "camp-default",
		Amount:          req.Amount,
		RecipientEmail:  req.RecipientEmail,
		RecipientName:   req.RecipientName,
		Message:         req.Message,
	}, nil
}

func (p *fakeProvider) GetOrderStatus(ctx context.Context, id string) (*giftogram.OrderStatus, error) {
	if p.statusEntered != nil {
		p.statusEntered <- struct{}{}
		<-p.statusRelease
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lookups++
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	st, ok := p.statuses[id]
	if !ok {
		return nil, &models.ProviderError{Op: "order status", StatusCode: 404, Message: "not found"}
	}
	return st, nil
}

func (p *fakeProvider) ListCampaigns(ctx context.Context) ([]giftogram.Campaign, error) {
	return []giftogram.Campaign{{ID: "camp-default", Name: "Default", Active: true}}, nil
}

// memStore implements BatchStore and OrderStore for testing
type memStore struct {
	mu        sync.Mutex
	batches   map[string]*models.Batch
	orders    []models.OrderRecord
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{batches: map[string]*models.Batch{}}
}

func (m *memStore) GetBatch(ctx context.Context, id, userID string) (*models.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok || b.UserID != userID {
		return nil, &models.NotFoundError{Resource: "email list", ID: id}
	}
	cp := *b
	cp.Recipients = append([]models.Recipient(nil), b.Recipients...)
	return &cp, nil
}

func (m *memStore) UpdateRecipientStatuses(ctx context.Context, id string, emails map[string]struct{}, status models.RecipientStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return &models.NotFoundError{Resource: "email list", ID: id}
	}
	b.Recipients = models.WithStatus(b.Recipients, emails, status)
	return nil
}

func (m *memStore) InsertOrders(ctx context.Context, records []models.OrderRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, records...)
	return nil
}

func (m *memStore) ListOrders(ctx context.Context, userID string, page, pageSize int) ([]models.OrderRecord, int, error) {
	all, _ := m.AllOrders(ctx, userID)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	start, end := models.Window(page, pageSize, len(all))
	return all[start:end], len(all), nil
}

func (m *memStore) AllOrders(ctx context.Context, userID string) ([]models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.OrderRecord
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) GetOrder(ctx context.Context, id, userID string) (*models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.ID == id && o.UserID == userID {
			cp := o
			return &cp, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "gift card", ID: id}
}

func (m *memStore) UpdateOrder(ctx context.Context, rec *models.OrderRecord, prev models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.orders {
		if m.orders[i].ID == rec.ID {
			if m.orders[i].Status != prev {
				return models.ErrStatusChanged
			}
			m.orders[i] = *rec
			return nil
		}
	}
	return errors.New("no such order")
}

func (m *memStore) OpenOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.OrderRecord
	for _, o := range m.orders {
		if o.Mock || o.Status.Terminal() {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// racingStore moves an order to processing just before the first
// conditional update, as a reconciliation finishing first would.
type racingStore struct {
	*memStore
	raced bool
}

func (r *racingStore) UpdateOrder(ctx context.Context, rec *models.OrderRecord, prev models.OrderStatus) error {
	if !r.raced {
		r.raced = true
		r.mu.Lock()
		for i := range r.orders {
			if r.orders[i].ID == rec.ID {
				r.orders[i].Status = models.OrderProcessing
			}
		}
		r.mu.Unlock()
	}
	return r.memStore.UpdateOrder(ctx, rec, prev)
}

type recordingNotifier struct {
	notices []BulkNotice
}

func (n *recordingNotifier) NotifyBulk(ctx context.Context, notice BulkNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}
