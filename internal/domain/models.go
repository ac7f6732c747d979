package domain

import (
	"fmt"
	"time"
)

// InvoiceStatus is the lifecycle state of an invoice. The overdue value
// exists for display and filtering, but IsOverdue is always computed from
// the due date and never read back from the stored status.
type InvoiceStatus string

const (
	StatusDraft   InvoiceStatus = "draft"
	StatusSent    InvoiceStatus = "sent"
	StatusPaid    InvoiceStatus = "paid"
	StatusOverdue InvoiceStatus = "overdue"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue:
		return true
	default:
		return false
	}
}

// Ordinal returns the enum position used for status sorting.
func (s InvoiceStatus) Ordinal() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSent:
		return 1
	case StatusPaid:
		return 2
	case StatusOverdue:
		return 3
	default:
		return 4
	}
}

// LoadingState describes the invoice manager's load lifecycle.
type LoadingState int

const (
	LoadingIdle LoadingState = iota
	LoadingInProgress
	LoadingSuccess
	LoadingError
)

func (l LoadingState) String() string {
	switch l {
	case LoadingIdle:
		return "idle"
	case LoadingInProgress:
		return "loading"
	case LoadingSuccess:
		return "success"
	case LoadingError:
		return "error"
	default:
		return "unknown"
	}
}

// SyncStatus is per-invoice sync metadata, persisted as its integer ordinal.
// Its lifecycle follows the pending queue, not invoice existence.
type SyncStatus int

const (
	SyncSynced SyncStatus = iota
	SyncPending
	SyncFailed
	SyncOffline
)

func (s SyncStatus) String() string {
	switch s {
	case SyncSynced:
		return "synced"
	case SyncPending:
		return "pending"
	case SyncFailed:
		return "failed"
	case SyncOffline:
		return "offline"
	default:
		return "unknown"
	}
}

type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// EmptyClient is the unset sentinel used by fallback paths such as queued
// offline deletes. Identified by its empty id.
func EmptyClient() Client {
	return Client{}
}

func (c Client) IsEmpty() bool {
	return c.ID == ""
}

type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

func (i InvoiceItem) Total() float64 {
	return float64(i.Quantity) * i.Price
}

type Invoice struct {
	ID             string        `json:"id"`
	InvoiceNumber  string        `json:"invoice_number"`
	Client         Client        `json:"client"`
	Items          []InvoiceItem `json:"items"`
	CreatedDate    time.Time     `json:"created_date"`
	DueDate        time.Time     `json:"due_date"`
	TaxPercentage  float64       `json:"tax_percentage"`
	DiscountAmount float64       `json:"discount_amount"`
	Status         InvoiceStatus `json:"status"`
	Notes          string        `json:"notes"`
}

func (inv Invoice) Subtotal() float64 {
	var sum float64
	for _, item := range inv.Items {
		sum += item.Total()
	}
	return sum
}

func (inv Invoice) TaxAmount() float64 {
	return inv.Subtotal() * inv.TaxPercentage / 100
}

func (inv Invoice) Total() float64 {
	return inv.Subtotal() + inv.TaxAmount() - inv.DiscountAmount
}

// IsOverdue is computed, never stored: a paid invoice is never overdue
// regardless of its stored status or due date.
func (inv Invoice) IsOverdue(now time.Time) bool {
	return inv.Status != StatusPaid && now.After(inv.DueDate)
}

type CompanySettings struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	BankName    string `json:"bank_name"`
	BankAccount string `json:"bank_account"`
	BankIFSC    string `json:"bank_ifsc"`
	LogoPath    string `json:"logo_path,omitempty"`
}

func DefaultCompanySettings() CompanySettings {
	return CompanySettings{
		Name:        "My Company",
		Address:     "Company Address",
		Phone:       "+91 00000 00000",
		Email:       "billing@example.com",
		BankName:    "Bank Name",
		BankAccount: "0000000000",
		BankIFSC:    "IFSC0000000",
	}
}

// PendingOperation tags a queued offline write.
type PendingOperation string

const (
	OpCreate PendingOperation = "create"
	OpUpdate PendingOperation = "update"
	OpDelete PendingOperation = "delete"
)

// PendingChange is one entry of the offline write queue. For delete entries
// only Invoice.ID is meaningful; the rest may be a placeholder.
type PendingChange struct {
	Invoice   Invoice          `json:"invoice"`
	Operation PendingOperation `json:"operation"`
	Timestamp time.Time        `json:"timestamp"`
}

// ExportVersion is the fixed format version stamped into export payloads.
const ExportVersion = "1.0"

type InvoiceExport struct {
	Invoices   []Invoice `json:"invoices"`
	ExportDate time.Time `json:"exportDate"`
	Version    string    `json:"version"`
}

// InvoiceSortField selects the sort key for SortInvoices.
type InvoiceSortField string

const (
	SortByNumber     InvoiceSortField = "invoice_number"
	SortByClientName InvoiceSortField = "client_name"
	SortByTotal      InvoiceSortField = "total"
	SortByCreated    InvoiceSortField = "created_date"
	SortByDueDate    InvoiceSortField = "due_date"
	SortByStatus     InvoiceSortField = "status"
)

// ValidationError is a recoverable field-level or business-rule failure,
// always raised to the caller before any state mutation.
type ValidationError struct {
	Field   string
	Kind    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
