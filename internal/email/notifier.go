package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"GiftSend/internal/orders"
)

var summaryTemplate = template.Must(template.New("bulk-summary").Parse(`<h2>Gift card bulk send finished</h2>
<p>List <strong>{{.FileName}}</strong> ({{.BatchID}}) for user {{.UserID}}.</p>
<table>
<tr><td>Processed</td><td>{{.Result.TotalProcessed}}</td></tr>
<tr><td>Successful</td><td>{{.Result.Successful}}</td></tr>
<tr><td>Failed</td><td>{{.Result.Failed}}</td></tr>
<tr><td>Amount each</td><td>${{.Amount}}</td></tr>
<tr><td>Total</td><td>${{.Total}}</td></tr>
</table>
{{if .Result.Errors}}<h3>Failures</h3>
<ul>
{{range .Result.Errors}}<li>{{.Email}}: {{.Error}}</li>
{{end}}</ul>
{{end}}`))

type summaryData struct {
	orders.BulkNotice
	Total int
}

// RenderSummary builds the operator email for one bulk send.
func RenderSummary(n orders.BulkNotice) (Message, error) {
	var body bytes.Buffer
	if err := summaryTemplate.Execute(&body, summaryData{BulkNotice: n, Total: n.Result.Successful * n.Amount}); err != nil {
		return Message{}, fmt.Errorf("template execution error: %w", err)
	}

	return Message{
		Subject: fmt.Sprintf("Gift cards sent: %d/%d for %s", n.Result.Successful, n.Result.TotalProcessed, n.FileName),
		HTML:    body.String(),
	}, nil
}

// Notifier emails a summary of every bulk send to a fixed operator address.
type Notifier struct {
	sender  *Sender
	to      string
	retries int
	log     *zap.Logger
}

func NewNotifier(sender *Sender, to string, retries int, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:  sender,
		to:      to,
		retries: retries,
		log:     logger.Named("notify"),
	}
}

func (n *Notifier) NotifyBulk(ctx context.Context, notice orders.BulkNotice) error {
	msg, err := RenderSummary(notice)
	if err != nil {
		return err
	}
	msg.To = n.to

	if err := n.sender.SendWithRetry(ctx, msg, n.retries); err != nil {
		return err
	}

	n.log.Info("bulk summary sent",
		zap.String("to", n.to),
		zap.String("list_id", notice.BatchID),
		zap.Int("successful", notice.Result.Successful),
	)
	return nil
}
