package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 0, 20)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)

	page, size = NormalizePage(3, 10000, 20)
	assert.Equal(t, 3, page)
	assert.Equal(t, MaxPageSize, size)

	page, size = NormalizePage(math.MaxInt, 3, 50)
	assert.Equal(t, 3, size)
	assert.Equal(t, math.MaxInt/3, page)
}

func TestWindow(t *testing.T) {
	tests := []struct {
		page, size, total int
		start, end        int
	}{
		{1, 10, 25, 0, 10},
		{3, 10, 25, 20, 25},
		{4, 10, 25, 25, 25},
		{1, 10, 0, 0, 0},
		{math.MaxInt, 3, 50, 50, 50},
		{math.MaxInt / 3, 3, 50, 50, 50},
		{0, 10, 25, 25, 25},
	}
	for _, tt := range tests {
		start, end := Window(tt.page, tt.size, tt.total)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, Pagination{Current: 2, Pages: 3, Total: 25, HasNext: true, HasPrev: true}, p)

	p = NewPagination(1, 10, 0)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)
}

func TestWithStatus(t *testing.T) {
	in := []Recipient{
		{Email: "a@a.com", Status: RecipientPending},
		{Email: "b@b.com", Status: RecipientPending},
	}
	out := WithStatus(in, map[string]struct{}{"b@b.com": {}}, RecipientSent)

	assert.Equal(t, RecipientPending, out[0].Status)
	assert.Equal(t, RecipientSent, out[1].Status)
	assert.Equal(t, RecipientPending, in[1].Status, "input must not be mutated")
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderPending.Terminal())
	assert.False(t, OrderProcessing.Terminal())
	assert.True(t, OrderDelivered.Terminal())
	assert.True(t, OrderFailed.Terminal())
	assert.True(t, OrderCancelled.Terminal())
}
