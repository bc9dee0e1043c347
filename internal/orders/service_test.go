package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"GiftSend/internal/giftogram"
	"GiftSend/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	provider *fakeProvider
	store    *memStore
	notifier *recordingNotifier
	svc      *Service
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		provider: newFakeProvider(),
		store:    newMemStore(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.batches["list-1"] = &models.Batch{
		ID:       "list-1",
		UserID:   "user-1",
		FileName: "contacts.xlsx",
		Recipients: []models.Recipient{
			{Email: "a@x.com", Name: "Ann", Status: models.RecipientPending},
			{Email: "b@x.com", Status: models.RecipientPending},
			{Email: "c@x.com", Name: "Cy", Status: models.RecipientPending},
		},
	}

	f.svc = NewService(f.provider, newOrchestrator(f.provider, 1), f.store, f.store, f.notifier, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestSendPersistsSuccessesAndMarksSelection(t *testing.T) {
	f := newFixture(t)
	f.provider.fail["b@x.com"] = &models.ProviderError{Op: "create order", StatusCode: 500, Message: "upstream down"}

	res, err := f.svc.Send(context.Background(), "user-1", SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"a@x.com", "b@x.com", "zzz@x.com"},
		Amount:         25,
		CampaignID:     "camp-7",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TotalProcessed)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 25, res.TotalAmount)

	require.Len(t, f.store.orders, 1)
	rec := f.store.orders[0]
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "list-1", rec.BatchID)
	assert.Equal(t, "a@x.com", rec.RecipientEmail)
	assert.Equal(t, "Ann", rec.RecipientName)
	assert.Equal(t, res.Results[0].ExternalID, rec.ExternalID)
	assert.Equal(t, res.Results[0].OrderID, rec.ProviderOrderID)
	assert.Equal(t, "camp-7", rec.CampaignID)
	assert.Equal(t, models.OrderPending, rec.Status)
	assert.Equal(t, models.DefaultMessage, rec.Message)
	assert.Equal(t, models.DefaultCurrency, rec.Currency)
	assert.False(t, rec.Mock)
	assert.NotEmpty(t, rec.ID)

	statuses := map[string]models.RecipientStatus{}
	for _, r := range f.store.batches["list-1"].Recipients {
		statuses[r.Email] = r.Status
	}
	assert.Equal(t, models.RecipientSent, statuses["a@x.com"])
	assert.Equal(t, models.RecipientSent, statuses["b@x.com"], "failed but selected recipients are marked sent")
	assert.Equal(t, models.RecipientPending, statuses["c@x.com"])

	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "contacts.xlsx", f.notifier.notices[0].FileName)
}

func TestSendOutlivesRequestContext(t *testing.T) {
	f := newFixture(t)
	reqCtx, cancelReq := context.WithCancel(context.Background())
	f.provider.afterSubmit = func(n int) {
		if n == 1 {
			cancelReq()
		}
	}

	res, err := f.svc.Send(reqCtx, "user-1", SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"a@x.com", "b@x.com", "c@x.com"},
		Amount:         10,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Successful)
	assert.Len(t, f.store.orders, 3)
	for _, r := range f.store.batches["list-1"].Recipients {
		assert.Equal(t, models.RecipientSent, r.Status, r.Email)
	}
}

func TestShutdownStopsSendAndKeepsCompletedOrders(t *testing.T) {
	f := newFixture(t)
	shutdownErr := make(chan error, 1)
	f.provider.afterSubmit = func(n int) {
		if n == 1 {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdownErr <- f.svc.Shutdown(ctx)
			}()
			<-f.svc.sendCtx.Done()
		}
	}

	res, err := f.svc.Send(context.Background(), "user-1", SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"a@x.com", "b@x.com", "c@x.com"},
		Amount:         10,
	})
	require.NoError(t, err)
	require.NoError(t, <-shutdownErr)

	assert.Equal(t, 3, res.TotalProcessed)
	assert.GreaterOrEqual(t, res.Failed, 1)
	assert.Len(t, f.store.orders, res.Successful)
	assert.Equal(t, "a@x.com", f.store.orders[0].RecipientEmail)

	_, err = f.svc.Send(context.Background(), "user-1", SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"a@x.com"},
		Amount:         10,
	})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestSendMessageLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)
	req := SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"a@x.com"},
		Amount:         10,
		Message:        strings.Repeat("é", models.MaxMessageLength),
	}

	_, err := f.svc.Send(context.Background(), "user-1", req)
	require.NoError(t, err)

	req.Message += "é"
	_, err = f.svc.Send(context.Background(), "user-1", req)
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"message"}, ve.Fields)
}

func TestSendNameFallsBackToLocalPart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), "user-1", SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"b@x.com"},
		Amount:         5,
		Message:        "Thanks!",
	})
	require.NoError(t, err)

	require.Len(t, f.store.orders, 1)
	assert.Equal(t, "b", f.store.orders[0].RecipientName)
	assert.Equal(t, "Thanks!", f.store.orders[0].Message)
	assert.Equal(t, "camp-default", f.store.orders[0].CampaignID)
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SendRequest
	}{
		{"missing list", SendRequest{SelectedEmails: []string{"a@x.com"}, Amount: 5}},
		{"missing selection", SendRequest{BatchID: "list-1", Amount: 5}},
		{"empty selection", SendRequest{BatchID: "list-1", SelectedEmails: []string{}, Amount: 5}},
		{"amount too large", SendRequest{BatchID: "list-1", SelectedEmails: []string{"a@x.com"}, Amount: 5000}},
		{"negative amount", SendRequest{BatchID: "list-1", SelectedEmails: []string{"a@x.com"}, Amount: -1}},
		{"selection outside list", SendRequest{BatchID: "list-1", SelectedEmails: []string{"nobody@x.com"}, Amount: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Send(context.Background(), "user-1", tt.req)

			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Empty(t, f.provider.submitted)
			assert.Empty(t, f.store.orders)
		})
	}
}

func TestSendForeignList(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Send(context.Background(), "user-2", SendRequest{
		BatchID:        "list-1",
		SelectedEmails: []string{"a@x.com"},
		Amount:         5,
	})

	var nf *models.NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Empty(t, f.provider.submitted)
}

func seedOrder(f *fixture, rec models.OrderRecord) {
	if rec.UserID == "" {
		rec.UserID = "user-1"
	}
	f.store.orders = append(f.store.orders, rec)
}

func TestRefreshStatus(t *testing.T) {
	t.Run("applies provider status", func(t *testing.T) {
		f := newFixture(t)
		seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
		f.provider.statuses["ord-1"] = &giftogram.OrderStatus{Status: "sent"}

		rec, err := f.svc.RefreshStatus(context.Background(), "user-1", "o1")
		require.NoError(t, err)

		assert.Equal(t, models.OrderDelivered, rec.Status)
		require.NotNil(t, rec.DeliveredAt)
		assert.Equal(t, f.now, *rec.DeliveredAt)
		assert.Equal(t, models.OrderDelivered, f.store.orders[0].Status)
	})

	t.Run("unknown status only touches last check", func(t *testing.T) {
		f := newFixture(t)
		seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
		f.provider.statuses["ord-1"] = &giftogram.OrderStatus{Status: "bogus-status"}

		rec, err := f.svc.RefreshStatus(context.Background(), "user-1", "o1")
		require.NoError(t, err)

		assert.Equal(t, models.OrderPending, rec.Status)
		require.NotNil(t, rec.LastStatusCheck)
		assert.Equal(t, f.now, *rec.LastStatusCheck)
	})

	t.Run("mock orders are never looked up", func(t *testing.T) {
		f := newFixture(t)
		seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "mock-1", Status: models.OrderPending, Mock: true})

		rec, err := f.svc.RefreshStatus(context.Background(), "user-1", "o1")
		require.NoError(t, err)

		assert.Equal(t, models.OrderPending, rec.Status)
		assert.Zero(t, f.provider.lookups)
	})

	t.Run("provider failure keeps last known record", func(t *testing.T) {
		f := newFixture(t)
		seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderProcessing})
		f.provider.statusErr = &models.ProviderError{Op: "order status", Message: "timeout"}

		rec, err := f.svc.RefreshStatus(context.Background(), "user-1", "o1")
		require.NoError(t, err)

		assert.Equal(t, models.OrderProcessing, rec.Status)
		assert.Nil(t, rec.LastStatusCheck)
	})

	t.Run("store failure keeps last known record", func(t *testing.T) {
		f := newFixture(t)
		seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
		f.provider.statuses["ord-1"] = &giftogram.OrderStatus{Status: "sent"}
		f.store.updateErr = errors.New("disk full")

		rec, err := f.svc.RefreshStatus(context.Background(), "user-1", "o1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderPending, rec.Status)
	})

	t.Run("foreign order", func(t *testing.T) {
		f := newFixture(t)
		seedOrder(f, models.OrderRecord{ID: "o1", UserID: "user-2"})

		_, err := f.svc.RefreshStatus(context.Background(), "user-1", "o1")
		var nf *models.NotFoundError
		assert.True(t, errors.As(err, &nf))
	})
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	seedOrder(f, models.OrderRecord{ID: "o1", Status: models.OrderPending})
	seedOrder(f, models.OrderRecord{ID: "o2", Status: models.OrderDelivered})

	rec, err := f.svc.Cancel(context.Background(), "user-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, rec.Status)
	assert.Equal(t, models.OrderCancelled, f.store.orders[0].Status)

	_, err = f.svc.Cancel(context.Background(), "user-1", "o2")
	var ve *models.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, models.OrderDelivered, f.store.orders[1].Status)
	assert.Zero(t, f.provider.lookups)
}

func TestRefreshDoesNotUndoConcurrentCancel(t *testing.T) {
	f := newFixture(t)
	seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
	f.provider.statuses["ord-1"] = &giftogram.OrderStatus{Status: "pending"}
	f.provider.statusEntered = make(chan struct{})
	f.provider.statusRelease = make(chan struct{})

	swept := make(chan int, 1)
	go func() {
		n, _ := f.svc.Sweep(context.Background(), 10)
		swept <- n
	}()

	<-f.provider.statusEntered
	rec, err := f.svc.Cancel(context.Background(), "user-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, rec.Status)
	close(f.provider.statusRelease)

	assert.Equal(t, 1, <-swept)
	got, err := f.store.GetOrder(context.Background(), "o1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
}

func TestCancelRetriesAfterConcurrentRefresh(t *testing.T) {
	f := newFixture(t)
	seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
	store := &racingStore{memStore: f.store}
	f.svc.orders = store

	rec, err := f.svc.Cancel(context.Background(), "user-1", "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, rec.Status)
	assert.Equal(t, models.OrderCancelled, f.store.orders[0].Status)
	assert.True(t, store.raced)
}

func TestHistoryAndStats(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []models.OrderStatus{models.OrderPending, models.OrderDelivered, models.OrderFailed} {
		seedOrder(f, models.OrderRecord{
			ID:        string(rune('a' + i)),
			Amount:    10 * (i + 1),
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	h, err := f.svc.History(context.Background(), "user-1", 1, 2)
	require.NoError(t, err)
	require.Len(t, h.GiftCards, 2)
	assert.Equal(t, "c", h.GiftCards[0].ID)
	assert.Equal(t, models.Pagination{Current: 1, Pages: 2, Total: 3, HasNext: true}, h.Pagination)

	stats, recent, err := f.svc.Stats(context.Background(), "user-1", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalGiftCards)
	assert.Equal(t, 60, stats.TotalAmount)
	assert.Equal(t, 20, stats.DeliveredAmount)
	assert.Len(t, recent, 3)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
	seedOrder(f, models.OrderRecord{ID: "o2", ProviderOrderID: "ord-2", Status: models.OrderDelivered})
	seedOrder(f, models.OrderRecord{ID: "o3", ProviderOrderID: "mock-3", Status: models.OrderPending, Mock: true})
	seedOrder(f, models.OrderRecord{ID: "o4", ProviderOrderID: "ord-4", Status: models.OrderProcessing})
	f.provider.statuses["ord-1"] = &giftogram.OrderStatus{Status: "processing"}
	f.provider.statuses["ord-4"] = &giftogram.OrderStatus{Status: "failed", FailureReason: "invalid mailbox"}

	n, err := f.svc.Sweep(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, models.OrderProcessing, f.store.orders[0].Status)
	assert.Equal(t, models.OrderFailed, f.store.orders[3].Status)
	assert.Equal(t, "invalid mailbox", f.store.orders[3].FailureReason)
}

func TestRunReconcilerStops(t *testing.T) {
	f := newFixture(t)
	seedOrder(f, models.OrderRecord{ID: "o1", ProviderOrderID: "ord-1", Status: models.OrderPending})
	f.provider.statuses["ord-1"] = &giftogram.OrderStatus{Status: "sent"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunReconciler(ctx, 5*time.Millisecond, 10)
		close(done)
	}()

	require.Eventually(t, func() bool {
		rec, _ := f.store.GetOrder(context.Background(), "o1", "user-1")
		return rec.Status == models.OrderDelivered
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}

func TestCampaigns(t *testing.T) {
	f := newFixture(t)

	campaigns, err := f.svc.Campaigns(context.Background())
	require.NoError(t, err)
	assert.Len(t, campaigns, 1)
}
