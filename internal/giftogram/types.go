package giftogram

import "time"

// OrderRequest is what the caller knows about one gift card to send.
type OrderRequest struct {
	Amount         int
	RecipientEmail string
	RecipientName  string
	Message        string
	CampaignID     string
}

// Order is the result of a successfully submitted order.
type Order struct {
	ProviderOrderID string
	ExternalID      string
	ProviderStatus  string
	CampaignID      string
	Amount          int
	RecipientEmail  string
	RecipientName   string
	Message         string
	Subject         string
	CreatedAt       time.Time
}

// OrderStatus is the provider's view of an order.
type OrderStatus struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	DeliveredAt   string `json:"delivered_at,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Active      bool   `json:"active"`
}

// wire types

type orderRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type createOrderRequest struct {
	ExternalID      string           `json:"external_id"`
	CampaignID      string           `json:"campaign_id"`
	Notes           string           `json:"notes"`
	ReferenceNumber string           `json:"reference_number"`
	Message         string           `json:"message"`
	Subject         string           `json:"subject"`
	Recipients      []orderRecipient `json:"recipients"`
	Denomination    string           `json:"denomination"`
}

type createOrderResponse struct {
	Data *struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"data"`
}

// Some provider versions wrap the order in "data", others return it bare.
type orderStatusResponse struct {
	OrderStatus
	Data *OrderStatus `json:"data"`
}

type campaignsResponse struct {
	Data []Campaign `json:"data"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
