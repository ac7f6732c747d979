package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("not found")

// Store is a string key-value store with list support and no transactions.
// It is the durability layer beneath the managers: a serialized mirror of
// in-memory state with no independent authority.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	GetList(ctx context.Context, key string) ([]string, error)
	SetList(ctx context.Context, key string, values []string) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Keys for the persisted records.
const (
	KeyClients         = "clients"
	KeyInvoices        = "invoices"
	KeyPendingInvoices = "pending_invoices"
	KeyPendingQueue    = "pending_queue"
	KeySyncStatuses    = "sync_statuses"
	KeyCompanySettings = "company_settings"
	KeyUsers           = "users"
)
