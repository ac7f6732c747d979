package xid

import (
	"strings"
	"testing"
	"time"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New("inv")
		if !strings.HasPrefix(id, "inv-") {
			t.Fatalf("expected inv- prefix, got %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestInvoiceNumberFormat(t *testing.T) {
	at := time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)
	number := InvoiceNumber(at)

	if !strings.HasPrefix(number, "INV-20260830-") {
		t.Fatalf("unexpected invoice number %s", number)
	}
	suffix := strings.TrimPrefix(number, "INV-20260830-")
	if len(suffix) != 6 || suffix != strings.ToUpper(suffix) {
		t.Fatalf("suffix should be 6 uppercase characters, got %q", suffix)
	}
}
