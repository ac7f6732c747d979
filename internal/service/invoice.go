package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"invoicely/backend/internal/connectivity"
	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
	"invoicely/backend/internal/validation"
	"invoicely/backend/internal/xid"
)

// InvoiceManager owns the invoice collection, the offline write queue, and
// the per-invoice sync status map. The in-memory state is authoritative; the
// kv store is a serialized mirror. All mutating operations, including the
// connectivity-triggered replay, run under one mutex so a queuing decision
// never races a replay.
type InvoiceManager struct {
	notifier

	store   kv.Store
	monitor connectivity.Monitor
	now     func() time.Time

	mu           sync.Mutex
	initialized  bool
	unsubscribe  func()
	invoices     []domain.Invoice
	loadingState domain.LoadingState
	errorMessage string
	pending      []domain.Invoice
	queue        []domain.PendingChange
	syncStatuses map[string]domain.SyncStatus
	offline      bool
}

func NewInvoiceManager(store kv.Store, monitor connectivity.Monitor) *InvoiceManager {
	return &InvoiceManager{
		store:        store,
		monitor:      monitor,
		now:          time.Now,
		syncStatuses: make(map[string]domain.SyncStatus),
	}
}

// Initialize loads persisted state, subscribes to connectivity transitions,
// and replays the pending queue if online. Safe to call more than once.
func (m *InvoiceManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.offline = !m.monitor.Online()

	err := m.loadLocked(ctx)
	if err == nil && !m.offline {
		m.replayLocked(ctx)
	}

	m.unsubscribe = m.monitor.Subscribe(func(online bool) {
		m.handleConnectivity(online)
	})
	m.mu.Unlock()
	m.notify()
	return err
}

// Close cancels the connectivity subscription.
func (m *InvoiceManager) Close() {
	m.mu.Lock()
	cancel := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *InvoiceManager) handleConnectivity(online bool) {
	m.mu.Lock()
	wasOffline := m.offline
	m.offline = !online
	if online && wasOffline {
		m.replayLocked(context.Background())
	}
	m.mu.Unlock()
	m.notify()
}

// LoadInvoices reloads invoices, the pending queue, and sync statuses from
// the store. All-or-nothing: on any failure the in-memory collections are
// left untouched and the loading state flips to error.
func (m *InvoiceManager) LoadInvoices(ctx context.Context) error {
	m.mu.Lock()
	err := m.loadLocked(ctx)
	m.mu.Unlock()
	m.notify()
	return err
}

func (m *InvoiceManager) loadLocked(ctx context.Context) error {
	m.loadingState = domain.LoadingInProgress

	invoices, err := m.readInvoiceList(ctx, kv.KeyInvoices)
	if err != nil {
		return m.failLoadLocked("load invoices", err)
	}
	pending, err := m.readInvoiceList(ctx, kv.KeyPendingInvoices)
	if err != nil {
		return m.failLoadLocked("load pending invoices", err)
	}
	queue, err := m.readQueue(ctx)
	if err != nil {
		return m.failLoadLocked("load pending queue", err)
	}
	statuses, err := m.readSyncStatuses(ctx)
	if err != nil {
		return m.failLoadLocked("load sync statuses", err)
	}

	m.invoices = invoices
	m.pending = pending
	m.queue = queue
	m.syncStatuses = statuses
	m.loadingState = domain.LoadingSuccess
	m.errorMessage = ""
	return nil
}

func (m *InvoiceManager) failLoadLocked(op string, err error) error {
	m.loadingState = domain.LoadingError
	m.errorMessage = fmt.Sprintf("%s: %v", op, err)
	log.Printf("[invoices] WARN: %s: %v", op, err)
	return fmt.Errorf("%s: %w", op, err)
}

// AddInvoice validates and stores a new invoice. With optimistic true the
// in-memory collection is updated before the write lands; a failed write
// rolls the speculation back with a full reload.
func (m *InvoiceManager) AddInvoice(ctx context.Context, inv domain.Invoice, optimistic bool) error {
	m.mu.Lock()
	err := m.writeLocked(ctx, inv, domain.OpCreate, optimistic, false)
	m.mu.Unlock()
	m.notify()
	return err
}

// UpdateInvoice replaces an existing invoice by id. Past due dates are
// allowed on update so an overdue invoice can still be edited or paid.
func (m *InvoiceManager) UpdateInvoice(ctx context.Context, inv domain.Invoice, optimistic bool) error {
	m.mu.Lock()
	err := m.writeLocked(ctx, inv, domain.OpUpdate, optimistic, true)
	m.mu.Unlock()
	m.notify()
	return err
}

func (m *InvoiceManager) writeLocked(ctx context.Context, inv domain.Invoice, op domain.PendingOperation, optimistic bool, allowPastDue bool) error {
	if op == domain.OpUpdate {
		if _, idx := m.findLocked(inv.ID); idx < 0 {
			return fmt.Errorf("invoice %s: %w", inv.ID, kv.ErrNotFound)
		}
	}
	if verr := m.validateLocked(inv, allowPastDue); verr != nil {
		return verr
	}

	next := m.applied(inv, op)
	if optimistic {
		m.invoices = next
	}

	if m.offline {
		m.queue = append(m.queue, domain.PendingChange{Invoice: inv, Operation: op, Timestamp: m.now()})
		m.pending = upsertInvoice(m.pending, inv)
		m.syncStatuses[inv.ID] = domain.SyncPending
		if err := m.persistQueueLocked(ctx); err != nil {
			return m.failWriteLocked(ctx, "queue invoice write", err, optimistic)
		}
		return nil
	}

	if err := m.persistInvoices(ctx, next); err != nil {
		return m.failWriteLocked(ctx, "persist invoices", err, optimistic)
	}
	m.invoices = next
	m.syncStatuses[inv.ID] = domain.SyncSynced
	m.persistSyncStatusesLocked(ctx)
	return nil
}

// DeleteInvoice removes an invoice by id. When offline and no copy of the
// invoice exists in memory, a placeholder is queued; replay only reads the
// id of a queued delete, so the placeholder content never reaches the store.
func (m *InvoiceManager) DeleteInvoice(ctx context.Context, id string, optimistic bool) error {
	m.mu.Lock()
	err := m.deleteLocked(ctx, id, optimistic)
	m.mu.Unlock()
	m.notify()
	return err
}

func (m *InvoiceManager) deleteLocked(ctx context.Context, id string, optimistic bool) error {
	captured, idx := m.findLocked(id)
	if optimistic && idx >= 0 {
		m.invoices = removeInvoice(m.invoices, id)
	}

	if m.offline {
		queued := captured
		if idx < 0 {
			queued = domain.Invoice{
				ID:      id,
				Client:  domain.EmptyClient(),
				DueDate: m.now(),
			}
		}
		m.queue = append(m.queue, domain.PendingChange{Invoice: queued, Operation: domain.OpDelete, Timestamp: m.now()})
		m.pending = removeInvoice(m.pending, id)
		m.syncStatuses[id] = domain.SyncPending
		if err := m.persistQueueLocked(ctx); err != nil {
			return m.failWriteLocked(ctx, "queue invoice delete", err, optimistic)
		}
		return nil
	}

	if idx < 0 {
		return fmt.Errorf("invoice %s: %w", id, kv.ErrNotFound)
	}
	next := removeInvoice(m.invoices, id)
	if err := m.persistInvoices(ctx, next); err != nil {
		return m.failWriteLocked(ctx, "persist invoice delete", err, optimistic)
	}
	m.invoices = next
	m.syncStatuses[id] = domain.SyncSynced
	m.persistSyncStatusesLocked(ctx)
	return nil
}

func (m *InvoiceManager) failWriteLocked(ctx context.Context, op string, err error, optimistic bool) error {
	log.Printf("[invoices] WARN: %s: %v", op, err)
	if optimistic {
		if lerr := m.loadLocked(ctx); lerr != nil {
			log.Printf("[invoices] WARN: rollback reload failed: %v", lerr)
		}
	}
	m.errorMessage = fmt.Sprintf("%s: %v", op, err)
	return fmt.Errorf("%s: %w", op, err)
}

// UpdateInvoiceStatus changes only the lifecycle status of an invoice.
func (m *InvoiceManager) UpdateInvoiceStatus(ctx context.Context, id string, status domain.InvoiceStatus) error {
	if !status.Valid() {
		return &domain.ValidationError{Field: "status", Kind: validation.KindFormat, Message: fmt.Sprintf("unknown status %q", status)}
	}
	m.mu.Lock()
	err := m.updateStatusLocked(ctx, id, status)
	m.mu.Unlock()
	m.notify()
	return err
}

func (m *InvoiceManager) updateStatusLocked(ctx context.Context, id string, status domain.InvoiceStatus) error {
	inv, idx := m.findLocked(id)
	if idx < 0 {
		return fmt.Errorf("invoice %s: %w", id, kv.ErrNotFound)
	}
	inv.Status = status
	return m.writeLocked(ctx, inv, domain.OpUpdate, true, true)
}

// DuplicateInvoice copies an invoice under a fresh id and number, dated now
// with the due date thirty days out, in draft status.
func (m *InvoiceManager) DuplicateInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	m.mu.Lock()
	source, idx := m.findLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return domain.Invoice{}, fmt.Errorf("invoice %s: %w", id, kv.ErrNotFound)
	}

	now := m.now()
	dup := source
	dup.ID = xid.New("inv")
	dup.InvoiceNumber = xid.InvoiceNumber(now)
	dup.Items = append([]domain.InvoiceItem(nil), source.Items...)
	dup.CreatedDate = now
	dup.DueDate = now.AddDate(0, 0, 30)
	dup.Status = domain.StatusDraft

	err := m.writeLocked(ctx, dup, domain.OpCreate, true, false)
	m.mu.Unlock()
	m.notify()
	if err != nil {
		return domain.Invoice{}, err
	}
	return dup, nil
}

// SearchInvoices matches the query case-insensitively against invoice
// number, client name, client email, and notes. An empty query returns the
// whole collection.
func (m *InvoiceManager) SearchInvoices(query string) []domain.Invoice {
	needle := strings.ToLower(strings.TrimSpace(query))
	return m.filter(func(inv domain.Invoice) bool {
		if needle == "" {
			return true
		}
		return strings.Contains(strings.ToLower(inv.InvoiceNumber), needle) ||
			strings.Contains(strings.ToLower(inv.Client.Name), needle) ||
			strings.Contains(strings.ToLower(inv.Client.Email), needle) ||
			strings.Contains(strings.ToLower(inv.Notes), needle)
	})
}

func (m *InvoiceManager) FilterByStatus(statuses ...domain.InvoiceStatus) []domain.Invoice {
	return m.filter(func(inv domain.Invoice) bool {
		for _, status := range statuses {
			if inv.Status == status {
				return true
			}
		}
		return false
	})
}

// FilterByDateRange keeps invoices created within the range, padded by one
// day on each side so boundary dates are never lost to timezone drift.
func (m *InvoiceManager) FilterByDateRange(start, end time.Time) []domain.Invoice {
	lo := start.AddDate(0, 0, -1)
	hi := end.AddDate(0, 0, 1)
	return m.filter(func(inv domain.Invoice) bool {
		return inv.CreatedDate.After(lo) && inv.CreatedDate.Before(hi)
	})
}

// FilterByTotalRange keeps invoices whose computed total falls inside the
// inclusive [min, max] range.
func (m *InvoiceManager) FilterByTotalRange(min, max float64) []domain.Invoice {
	return m.filter(func(inv domain.Invoice) bool {
		total := inv.Total()
		return total >= min && total <= max
	})
}

func (m *InvoiceManager) filter(keep func(domain.Invoice) bool) []domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		if keep(inv) {
			out = append(out, inv)
		}
	}
	return out
}

// SortInvoices returns a sorted copy; the managed collection keeps its
// insertion order.
func (m *InvoiceManager) SortInvoices(field domain.InvoiceSortField, ascending bool) []domain.Invoice {
	out := m.Invoices()
	less := func(a, b domain.Invoice) bool {
		switch field {
		case domain.SortByNumber:
			return strings.ToLower(a.InvoiceNumber) < strings.ToLower(b.InvoiceNumber)
		case domain.SortByClientName:
			return strings.ToLower(a.Client.Name) < strings.ToLower(b.Client.Name)
		case domain.SortByTotal:
			return a.Total() < b.Total()
		case domain.SortByDueDate:
			return a.DueDate.Before(b.DueDate)
		case domain.SortByStatus:
			return a.Status.Ordinal() < b.Status.Ordinal()
		default:
			return a.CreatedDate.Before(b.CreatedDate)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}

// BulkUpdateStatus applies the status change id by id, stopping at the first
// failure. Changes already applied stay applied; there is no rollback.
func (m *InvoiceManager) BulkUpdateStatus(ctx context.Context, ids []string, status domain.InvoiceStatus) error {
	if !status.Valid() {
		return &domain.ValidationError{Field: "status", Kind: validation.KindFormat, Message: fmt.Sprintf("unknown status %q", status)}
	}
	m.mu.Lock()
	var err error
	for _, id := range ids {
		if err = m.updateStatusLocked(ctx, id, status); err != nil {
			err = fmt.Errorf("bulk status %s: %w", id, err)
			break
		}
	}
	m.mu.Unlock()
	m.notify()
	return err
}

// BulkDelete removes invoices id by id, stopping at the first failure.
func (m *InvoiceManager) BulkDelete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	var err error
	for _, id := range ids {
		if err = m.deleteLocked(ctx, id, true); err != nil {
			err = fmt.Errorf("bulk delete %s: %w", id, err)
			break
		}
	}
	m.mu.Unlock()
	m.notify()
	return err
}

// Export snapshots the collection into a versioned payload.
func (m *InvoiceManager) Export() domain.InvoiceExport {
	return domain.InvoiceExport{
		Invoices:   m.Invoices(),
		ExportDate: m.now(),
		Version:    domain.ExportVersion,
	}
}

// Import validates every incoming invoice against the full rule set before
// any write, then replaces the stored collection wholesale and reloads. One
// invalid record aborts the whole import.
func (m *InvoiceManager) Import(ctx context.Context, invoices []domain.Invoice) error {
	m.mu.Lock()
	defer func() {
		m.mu.Unlock()
		m.notify()
	}()

	for i, inv := range invoices {
		others := make([]string, 0, len(invoices)-1)
		for j, other := range invoices {
			if j != i {
				others = append(others, other.InvoiceNumber)
			}
		}
		if verr := validateInvoice(inv, others, true); verr != nil {
			return fmt.Errorf("import record %d: %w", i+1, verr)
		}
	}

	if err := m.persistInvoices(ctx, invoices); err != nil {
		return m.failWriteLocked(ctx, "import invoices", err, false)
	}
	return m.loadLocked(ctx)
}

// ReplayPending drains the offline queue against the store. Exposed for the
// sync endpoint; the same replay runs automatically on reconnect.
func (m *InvoiceManager) ReplayPending(ctx context.Context) {
	m.mu.Lock()
	m.replayLocked(ctx)
	m.mu.Unlock()
	m.notify()
}

// replayLocked applies queued changes in order. Per-item failures mark the
// id failed and keep the entry in the queue for the next replay; successful
// entries are removed.
func (m *InvoiceManager) replayLocked(ctx context.Context) {
	if len(m.queue) == 0 {
		return
	}

	remaining := make([]domain.PendingChange, 0, len(m.queue))
	for _, change := range m.queue {
		var next []domain.Invoice
		switch change.Operation {
		case domain.OpDelete:
			// Only the id of a queued delete is meaningful.
			next = removeInvoice(m.invoices, change.Invoice.ID)
		default:
			next = m.applied(change.Invoice, change.Operation)
		}

		if err := m.persistInvoices(ctx, next); err != nil {
			log.Printf("[invoices] WARN: replay %s %s: %v", change.Operation, change.Invoice.ID, err)
			m.syncStatuses[change.Invoice.ID] = domain.SyncFailed
			remaining = append(remaining, change)
			continue
		}
		m.invoices = next
		m.syncStatuses[change.Invoice.ID] = domain.SyncSynced
	}

	m.queue = remaining
	m.pending = m.pending[:0]
	for _, change := range remaining {
		if change.Operation != domain.OpDelete {
			m.pending = upsertInvoice(m.pending, change.Invoice)
		}
	}
	if err := m.persistQueueLocked(ctx); err != nil {
		log.Printf("[invoices] WARN: persist queue after replay: %v", err)
	}
}

// Invoices returns a copy of the collection in insertion order.
func (m *InvoiceManager) Invoices() []domain.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Invoice(nil), m.invoices...)
}

// GetInvoiceByID returns the invoice and whether it exists.
func (m *InvoiceManager) GetInvoiceByID(id string) (domain.Invoice, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, idx := m.findLocked(id)
	return inv, idx >= 0
}

func (m *InvoiceManager) LoadingState() domain.LoadingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadingState
}

func (m *InvoiceManager) ErrorMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorMessage
}

func (m *InvoiceManager) ClearError() {
	m.mu.Lock()
	m.errorMessage = ""
	m.mu.Unlock()
	m.notify()
}

func (m *InvoiceManager) IsOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// PendingChanges returns a copy of the offline queue in order.
func (m *InvoiceManager) PendingChanges() []domain.PendingChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PendingChange(nil), m.queue...)
}

// SyncStatuses returns a copy of the per-invoice sync status map.
func (m *InvoiceManager) SyncStatuses() map[string]domain.SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.SyncStatus, len(m.syncStatuses))
	for id, status := range m.syncStatuses {
		out[id] = status
	}
	return out
}

func (m *InvoiceManager) SyncStatusFor(id string) (domain.SyncStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.syncStatuses[id]
	return status, ok
}

func (m *InvoiceManager) findLocked(id string) (domain.Invoice, int) {
	for i, inv := range m.invoices {
		if inv.ID == id {
			return inv, i
		}
	}
	return domain.Invoice{}, -1
}

// applied returns a copy of the collection with the change upserted.
func (m *InvoiceManager) applied(inv domain.Invoice, op domain.PendingOperation) []domain.Invoice {
	if op == domain.OpUpdate {
		out := append([]domain.Invoice(nil), m.invoices...)
		for i := range out {
			if out[i].ID == inv.ID {
				out[i] = inv
				return out
			}
		}
		return append(out, inv)
	}
	return upsertInvoice(append([]domain.Invoice(nil), m.invoices...), inv)
}

func (m *InvoiceManager) validateLocked(inv domain.Invoice, allowPastDue bool) *domain.ValidationError {
	taken := make([]string, 0, len(m.invoices))
	for _, existing := range m.invoices {
		if existing.ID != inv.ID {
			taken = append(taken, existing.InvoiceNumber)
		}
	}
	return validateInvoice(inv, taken, allowPastDue)
}

func validateInvoice(inv domain.Invoice, takenNumbers []string, allowPastDue bool) *domain.ValidationError {
	if res := validation.ValidateUnique(inv.InvoiceNumber, "invoice number", takenNumbers); !res.IsValid {
		return &domain.ValidationError{Field: "invoice_number", Kind: res.Kind, Message: res.ErrorMessage}
	}
	if res := validation.Validate(inv.Client.Name, "client name"); !res.IsValid {
		return &domain.ValidationError{Field: "client.name", Kind: res.Kind, Message: res.ErrorMessage}
	}
	if strings.TrimSpace(inv.Client.Email) != "" {
		if res := validation.Validate(inv.Client.Email, "client email"); !res.IsValid {
			return &domain.ValidationError{Field: "client.email", Kind: res.Kind, Message: res.ErrorMessage}
		}
	}
	if len(inv.Items) == 0 {
		return &domain.ValidationError{Field: "items", Kind: validation.KindRequired, Message: "invoice must have at least one item"}
	}
	for i, item := range inv.Items {
		if res := validation.Validate(item.Description, "item description"); !res.IsValid {
			return &domain.ValidationError{Field: fmt.Sprintf("items[%d].description", i), Kind: res.Kind, Message: res.ErrorMessage}
		}
		if item.Quantity <= 0 {
			return &domain.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Kind: validation.KindRange, Message: "quantity must be greater than zero"}
		}
		if item.Price < 0 {
			return &domain.ValidationError{Field: fmt.Sprintf("items[%d].price", i), Kind: validation.KindRange, Message: "price must not be negative"}
		}
	}
	if res := validation.ValidateDate(inv.DueDate, "due date", allowPastDue); !res.IsValid {
		return &domain.ValidationError{Field: "due_date", Kind: res.Kind, Message: res.ErrorMessage}
	}
	return nil
}

func upsertInvoice(invoices []domain.Invoice, inv domain.Invoice) []domain.Invoice {
	for i := range invoices {
		if invoices[i].ID == inv.ID {
			invoices[i] = inv
			return invoices
		}
	}
	return append(invoices, inv)
}

func removeInvoice(invoices []domain.Invoice, id string) []domain.Invoice {
	out := make([]domain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ID != id {
			out = append(out, inv)
		}
	}
	return out
}

func (m *InvoiceManager) readInvoiceList(ctx context.Context, key string) ([]domain.Invoice, error) {
	raw, err := m.store.GetList(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Invoice, 0, len(raw))
	for _, item := range raw {
		var inv domain.Invoice
		if err := json.Unmarshal([]byte(item), &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, nil
}

func (m *InvoiceManager) readQueue(ctx context.Context) ([]domain.PendingChange, error) {
	raw, err := m.store.GetList(ctx, kv.KeyPendingQueue)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PendingChange, 0, len(raw))
	for _, item := range raw {
		var change domain.PendingChange
		if err := json.Unmarshal([]byte(item), &change); err != nil {
			return nil, fmt.Errorf("decode pending change: %w", err)
		}
		out = append(out, change)
	}
	return out, nil
}

func (m *InvoiceManager) readSyncStatuses(ctx context.Context) (map[string]domain.SyncStatus, error) {
	raw, err := m.store.Get(ctx, kv.KeySyncStatuses)
	if err == kv.ErrNotFound {
		return make(map[string]domain.SyncStatus), nil
	}
	if err != nil {
		return nil, err
	}
	ordinals := make(map[string]int)
	if err := json.Unmarshal([]byte(raw), &ordinals); err != nil {
		return nil, fmt.Errorf("decode sync statuses: %w", err)
	}
	out := make(map[string]domain.SyncStatus, len(ordinals))
	for id, ordinal := range ordinals {
		out[id] = domain.SyncStatus(ordinal)
	}
	return out, nil
}

func (m *InvoiceManager) persistInvoices(ctx context.Context, invoices []domain.Invoice) error {
	encoded := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		item, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("encode invoice %s: %w", inv.ID, err)
		}
		encoded = append(encoded, string(item))
	}
	return m.store.SetList(ctx, kv.KeyInvoices, encoded)
}

// persistQueueLocked rewrites the queue, the pending invoice list, and the
// sync status map together.
func (m *InvoiceManager) persistQueueLocked(ctx context.Context) error {
	queue := make([]string, 0, len(m.queue))
	for _, change := range m.queue {
		item, err := json.Marshal(change)
		if err != nil {
			return fmt.Errorf("encode pending change: %w", err)
		}
		queue = append(queue, string(item))
	}
	if err := m.store.SetList(ctx, kv.KeyPendingQueue, queue); err != nil {
		return err
	}

	pending := make([]string, 0, len(m.pending))
	for _, inv := range m.pending {
		item, err := json.Marshal(inv)
		if err != nil {
			return fmt.Errorf("encode pending invoice %s: %w", inv.ID, err)
		}
		pending = append(pending, string(item))
	}
	if err := m.store.SetList(ctx, kv.KeyPendingInvoices, pending); err != nil {
		return err
	}

	m.persistSyncStatusesLocked(ctx)
	return nil
}

// persistSyncStatusesLocked writes the status map; failures are logged only,
// the map is metadata and rebuilds on the next successful write.
func (m *InvoiceManager) persistSyncStatusesLocked(ctx context.Context) {
	ordinals := make(map[string]int, len(m.syncStatuses))
	for id, status := range m.syncStatuses {
		ordinals[id] = int(status)
	}
	encoded, err := json.Marshal(ordinals)
	if err != nil {
		log.Printf("[invoices] WARN: encode sync statuses: %v", err)
		return
	}
	if err := m.store.Set(ctx, kv.KeySyncStatuses, string(encoded)); err != nil {
		log.Printf("[invoices] WARN: persist sync statuses: %v", err)
	}
}
