package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestInvoiceTotals(t *testing.T) {
	inv := Invoice{
		Items: []InvoiceItem{
			{Description: "Consulting", Quantity: 2, Price: 10.0},
			{Description: "Hosting", Quantity: 1, Price: 5.0},
		},
		TaxPercentage:  10,
		DiscountAmount: 3,
	}

	if got := inv.Subtotal(); got != 25.0 {
		t.Fatalf("subtotal = %v, want 25", got)
	}
	if got := inv.TaxAmount(); got != 2.5 {
		t.Fatalf("tax = %v, want 2.5", got)
	}
	if got := inv.Total(); got != 24.5 {
		t.Fatalf("total = %v, want 24.5", got)
	}
}

func TestIsOverdueNeverTrueForPaid(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	pastDue := now.AddDate(0, 0, -5)

	overdue := Invoice{Status: StatusSent, DueDate: pastDue}
	if !overdue.IsOverdue(now) {
		t.Fatalf("unpaid invoice past its due date must be overdue")
	}

	paid := Invoice{Status: StatusPaid, DueDate: pastDue}
	if paid.IsOverdue(now) {
		t.Fatalf("a paid invoice is never overdue")
	}

	future := Invoice{Status: StatusDraft, DueDate: now.AddDate(0, 0, 1)}
	if future.IsOverdue(now) {
		t.Fatalf("an invoice due tomorrow is not overdue")
	}
}

func TestInvoiceJSONRoundTrip(t *testing.T) {
	original := Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-20260830-ABC123",
		Client:        Client{ID: "cl-1", Name: "Ana Silva", Email: "ana@example.com"},
		Items:         []InvoiceItem{{Description: "Consulting", Quantity: 3, Price: 120.50}},
		CreatedDate:   time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		TaxPercentage: 11,
		Status:        StatusSent,
		Notes:         "monthly retainer",
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded Invoice
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.ID != original.ID || decoded.InvoiceNumber != original.InvoiceNumber {
		t.Fatalf("identity fields lost in round trip")
	}
	if !decoded.CreatedDate.Equal(original.CreatedDate) || !decoded.DueDate.Equal(original.DueDate) {
		t.Fatalf("dates lost in round trip")
	}
	if decoded.Total() != original.Total() {
		t.Fatalf("totals diverge after round trip")
	}
}

func TestStatusOrdinalOrdering(t *testing.T) {
	order := []InvoiceStatus{StatusDraft, StatusSent, StatusPaid, StatusOverdue}
	for i := 1; i < len(order); i++ {
		if order[i-1].Ordinal() >= order[i].Ordinal() {
			t.Fatalf("status ordinals must be strictly increasing: %s vs %s", order[i-1], order[i])
		}
	}
	if InvoiceStatus("bogus").Valid() {
		t.Fatalf("unknown status must not validate")
	}
}

func TestPendingChangeJSONShape(t *testing.T) {
	change := PendingChange{
		Invoice:   Invoice{ID: "inv-1"},
		Operation: OpDelete,
		Timestamp: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}

	encoded, err := json.Marshal(change)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"invoice", "operation", "timestamp"} {
		if _, ok := asMap[key]; !ok {
			t.Fatalf("queue entry missing %q field", key)
		}
	}
}
