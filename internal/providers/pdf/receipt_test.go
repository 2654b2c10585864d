package pdf

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestChargeReceiptRendersPDF(t *testing.T) {
	doc, err := New().ChargeReceipt(context.Background(), Receipt{
		Issuer:           "accounts",
		OrganizationName: "Daily Planet",
		ChargeID:         "ch_123",
		Date:             "2026-10-16",
		Card:             "Visa ending in 4242",
		Items: []ReceiptItem{
			{Description: "Annual plan", Amount: "$20.00"},
			{Description: "Processing fee", Amount: "$5.00"},
		},
		Total: "$25.00",
	})
	if err != nil {
		t.Fatalf("render receipt: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF")) {
		t.Fatalf("expected a PDF document, got %q", doc[:min(len(doc), 8)])
	}
}

func TestChargeReceiptRequiresItems(t *testing.T) {
	_, err := New().ChargeReceipt(context.Background(), Receipt{ChargeID: "ch_1"})
	if !errors.Is(err, ErrInvalidReceipt) {
		t.Fatalf("expected invalid receipt, got %v", err)
	}
}
