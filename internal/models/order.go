package models

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderDelivered  OrderStatus = "delivered"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether reconciliation may still move the order.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderDelivered, OrderFailed, OrderCancelled:
		return true
	}
	return false
}

const (
	MinAmount = 1
	MaxAmount = 1000

	DefaultCurrency = "USD"
	DefaultMessage  = "Enjoy your gift card!"
	DefaultSubject  = "Your Gift Card is Ready!"

	MaxMessageLength = 500
)

// OrderRecord is one gift card order sent to one recipient.
type OrderRecord struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	BatchID string `json:"emailListId"`

	ExternalID      string `json:"externalId"`
	ProviderOrderID string `json:"giftogramOrderId"`
	CampaignID      string `json:"campaignId"`

	Amount   int    `json:"amount"`
	Currency string `json:"currency"`

	RecipientEmail string `json:"recipientEmail"`
	RecipientName  string `json:"recipientName"`
	Message        string `json:"message"`
	Subject        string `json:"subject"`

	Status         OrderStatus `json:"status"`
	ProviderStatus string      `json:"giftogramStatus"`
	DeliveredAt    *time.Time  `json:"deliveredAt,omitempty"`
	FailureReason  string      `json:"failureReason,omitempty"`

	Mock            bool       `json:"mock"`
	RetryCount      int        `json:"retryCount"`
	LastStatusCheck *time.Time `json:"lastStatusCheck,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidAmount reports whether amount is an allowed denomination.
func ValidAmount(amount int) bool {
	return amount >= MinAmount && amount <= MaxAmount
}
