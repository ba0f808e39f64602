package payment

import (
	"context"
	"fmt"
	"time"

	"stefabooks/internal/platform/monobank"
)

type invoiceCreator interface {
	CreateInvoice(ctx context.Context, req monobank.InvoiceRequest) (monobank.InvoiceResponse, error)
}

// MonobankProvider creates Monobank Acquiring invoices for payments.
type MonobankProvider struct {
	client      invoiceCreator
	redirectURL string
	webhookURL  string
	now         func() time.Time
}

func NewMonobankProvider(client invoiceCreator, redirectURL, webhookURL string) *MonobankProvider {
	return &MonobankProvider{client: client, redirectURL: redirectURL, webhookURL: webhookURL, now: time.Now}
}

func (m *MonobankProvider) CreateInvoice(ctx context.Context, p Payment) (Invoice, error) {
	ccy, ok := monobank.CurrencyCode(p.Currency)
	if !ok {
		return Invoice{}, fmt.Errorf("currency %s is not supported by monobank", p.Currency)
	}
	validity := int64(p.ExpiresAt.Sub(m.now()).Seconds())
	if validity < 60 {
		validity = 60
	}

	res, err := m.client.CreateInvoice(ctx, monobank.InvoiceRequest{
		Amount: p.Amount,
		Ccy:    ccy,
		MerchantPaymInfo: monobank.MerchantPaymInfo{
			Reference:   p.OrderID,
			Destination: p.Description,
		},
		RedirectURL: m.redirectURL,
		WebHookURL:  m.webhookURL,
		Validity:    validity,
	})
	if err != nil {
		return Invoice{}, err
	}
	return Invoice{ID: res.InvoiceID, URL: res.PageURL}, nil
}
