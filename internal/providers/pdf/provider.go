package pdf

import "context"

// Receipt carries display-ready values; amounts are already formatted.
type Receipt struct {
	Issuer           string
	OrganizationName string
	ChargeID         string
	Date             string
	Card             string
	Items            []ReceiptItem
	Total            string
}

type ReceiptItem struct {
	Description string
	Amount      string
}

type Provider interface {
	ChargeReceipt(ctx context.Context, receipt Receipt) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) ChargeReceipt(ctx context.Context, receipt Receipt) ([]byte, error) {
	return nil, nil
}
