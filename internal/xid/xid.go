package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a prefixed opaque identifier, e.g. "inv-9f8c2d...".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}

// InvoiceNumber builds a human-facing invoice number of the form
// INV-YYYYMMDD-XXXXXX. Uniqueness across the collection is enforced at
// write time by the invoice manager, not here.
func InvoiceNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), suffix)
}
