package orders

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"GiftSend/internal/giftogram"
	"GiftSend/internal/metrics"
	"GiftSend/internal/models"
	"GiftSend/internal/worker"
)

type Submitter interface {
	SubmitOrder(ctx context.Context, req giftogram.OrderRequest) (*giftogram.Order, error)
}

type BulkSuccess struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Success        bool   `json:"success"`
	OrderID        string `json:"orderId"`
	ExternalID     string `json:"externalId"`
	ProviderStatus string `json:"-"`
	CampaignID     string `json:"-"`
	Amount         int    `json:"amount"`
}

type BulkFailure struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

type BulkResult struct {
	Success        bool          `json:"success"`
	TotalProcessed int           `json:"totalProcessed"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	Results        []BulkSuccess `json:"results"`
	Errors         []BulkFailure `json:"errors"`
}

// Orchestrator submits one order per recipient. A failing recipient never
// stops the others.
type Orchestrator struct {
	client Submitter
	pool   *worker.Pool
	log    *zap.Logger
}

func NewOrchestrator(client Submitter, pool *worker.Pool, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		client: client,
		pool:   pool,
		log:    logger.Named("bulk"),
	}
}

type outcome struct {
	done    bool
	success BulkSuccess
	failure BulkFailure
	failed  bool
}

// ProcessBulk submits an order of amount for every recipient, in input order.
// len(Results)+len(Errors) always equals len(recipients). Recipients never
// attempted because ctx ended are reported as errors.
func (o *Orchestrator) ProcessBulk(
	ctx context.Context,
	recipients []models.Recipient,
	amount int,
	message string,
	campaignID string,
) BulkResult {

	o.log.Info("processing bulk gift cards",
		zap.Int("recipients", len(recipients)),
		zap.Int("amount", amount),
		zap.Int("workers", o.pool.Workers()),
	)

	outcomes := make([]outcome, len(recipients))

	runErr := o.pool.Run(ctx, len(recipients), func(ctx context.Context, i int) {
		r := recipients[i]

		order, err := o.client.SubmitOrder(ctx, giftogram.OrderRequest{
			Amount:         amount,
			RecipientEmail: r.Email,
			RecipientName:  r.Name,
			Message:        message,
			CampaignID:     campaignID,
		})
		if err != nil {
			o.log.Error("gift card order failed",
				zap.String("email", r.Email),
				zap.Error(err),
			)
			outcomes[i] = outcome{done: true, failed: true, failure: BulkFailure{Email: r.Email, Error: err.Error()}}
			return
		}

		outcomes[i] = outcome{done: true, success: BulkSuccess{
			Email:          r.Email,
			Name:           r.Name,
			Success:        true,
			OrderID:        order.ProviderOrderID,
			ExternalID:     order.ExternalID,
			ProviderStatus: order.ProviderStatus,
			CampaignID:     order.CampaignID,
			Amount:         amount,
		}}
	})

	res := BulkResult{
		TotalProcessed: len(recipients),
		Results:        make([]BulkSuccess, 0, len(recipients)),
		Errors:         make([]BulkFailure, 0),
	}

	for i, oc := range outcomes {
		switch {
		case !oc.done:
			res.Errors = append(res.Errors, BulkFailure{
				Email: recipients[i].Email,
				Error: fmt.Sprintf("not attempted: %v", runErr),
			})
		case oc.failed:
			res.Errors = append(res.Errors, oc.failure)
		default:
			res.Results = append(res.Results, oc.success)
		}
	}

	res.Successful = len(res.Results)
	res.Failed = len(res.Errors)
	res.Success = res.Failed == 0

	metrics.OrdersSubmitted.Add(float64(res.Successful))
	metrics.OrderFailures.Add(float64(res.Failed))

	o.log.Info("bulk gift cards processed",
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)

	return res
}
