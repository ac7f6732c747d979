package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"invoicely/backend/internal/connectivity"
	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
	"invoicely/backend/internal/kv/memory"
)

// flakyStore wraps a real store and can refuse writes to the durable
// invoices record while leaving the queue keys working.
type flakyStore struct {
	kv.Store
	mu           sync.Mutex
	failInvoices bool
}

func (s *flakyStore) setFail(fail bool) {
	s.mu.Lock()
	s.failInvoices = fail
	s.mu.Unlock()
}

func (s *flakyStore) SetList(ctx context.Context, key string, values []string) error {
	s.mu.Lock()
	fail := s.failInvoices
	s.mu.Unlock()
	if fail && key == kv.KeyInvoices {
		return errors.New("storage write refused")
	}
	return s.Store.SetList(ctx, key, values)
}

func newTestManager(t *testing.T, online bool) (*InvoiceManager, *connectivity.Manual, *flakyStore) {
	t.Helper()
	store := &flakyStore{Store: memory.New()}
	monitor := connectivity.NewManual(online)
	manager := NewInvoiceManager(store, monitor)
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	return manager, monitor, store
}

func sampleInvoice(id string, number string, clientName string, due time.Time) domain.Invoice {
	return domain.Invoice{
		ID:            id,
		InvoiceNumber: number,
		Client: domain.Client{
			ID:    "cl-" + id,
			Name:  clientName,
			Email: "billing@example.com",
		},
		Items: []domain.InvoiceItem{
			{Description: "Consulting", Quantity: 2, Price: 10.0},
			{Description: "Hosting", Quantity: 1, Price: 5.0},
		},
		CreatedDate: time.Now().UTC(),
		DueDate:     due,
		Status:      domain.StatusDraft,
	}
}

func futureDue() time.Time {
	return time.Now().UTC().AddDate(0, 0, 14)
}

func TestAddInvoicePersistsAndMarksSynced(t *testing.T) {
	manager, _, store := newTestManager(t, true)
	ctx := context.Background()

	inv := sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue())
	if err := manager.AddInvoice(ctx, inv, true); err != nil {
		t.Fatalf("add invoice failed: %v", err)
	}

	durable, err := store.GetList(ctx, kv.KeyInvoices)
	if err != nil {
		t.Fatalf("read durable invoices: %v", err)
	}
	if len(durable) != 1 {
		t.Fatalf("expected 1 durable invoice, got %d", len(durable))
	}
	if status, ok := manager.SyncStatusFor("inv-1"); !ok || status != domain.SyncSynced {
		t.Fatalf("expected synced status, got %v (ok=%v)", status, ok)
	}
}

func TestAddInvoiceRejectsDuplicateNumber(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	if err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue()), true); err != nil {
		t.Fatalf("first add failed: %v", err)
	}

	err := manager.AddInvoice(ctx, sampleInvoice("inv-2", "inv-001", "Budi Santoso", futureDue()), true)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Kind != "unique" {
		t.Fatalf("expected unique violation, got kind %q", verr.Kind)
	}
	if len(manager.Invoices()) != 1 {
		t.Fatalf("rejected invoice must not enter the collection")
	}
}

func TestAddInvoiceRejectsPastDueDateButUpdateAllowsIt(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()
	past := time.Now().UTC().AddDate(0, 0, -10)

	err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", past), true)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for past due date, got %v", err)
	}

	inv := sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue())
	if err := manager.AddInvoice(ctx, inv, true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	inv.DueDate = past
	if err := manager.UpdateInvoice(ctx, inv, true); err != nil {
		t.Fatalf("update with past due date should be allowed: %v", err)
	}
	if err := manager.UpdateInvoiceStatus(ctx, "inv-1", domain.StatusPaid); err != nil {
		t.Fatalf("marking an overdue invoice paid should work: %v", err)
	}
}

func TestOfflineAddQueuesWithoutDurableWrite(t *testing.T) {
	manager, monitor, store := newTestManager(t, false)
	ctx := context.Background()

	inv := sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue())
	if err := manager.AddInvoice(ctx, inv, true); err != nil {
		t.Fatalf("offline add failed: %v", err)
	}

	durable, _ := store.GetList(ctx, kv.KeyInvoices)
	if len(durable) != 0 {
		t.Fatalf("offline add must not touch the durable invoices record")
	}
	if len(manager.PendingChanges()) != 1 {
		t.Fatalf("expected 1 queued change, got %d", len(manager.PendingChanges()))
	}
	if status, _ := manager.SyncStatusFor("inv-1"); status != domain.SyncPending {
		t.Fatalf("expected pending status, got %v", status)
	}
	if len(manager.Invoices()) != 1 {
		t.Fatalf("optimistic add must show in memory immediately")
	}

	monitor.Set(true)

	durable, _ = store.GetList(ctx, kv.KeyInvoices)
	if len(durable) != 1 {
		t.Fatalf("replay should persist the queued invoice, got %d durable", len(durable))
	}
	if len(manager.PendingChanges()) != 0 {
		t.Fatalf("queue should be empty after successful replay")
	}
	if status, _ := manager.SyncStatusFor("inv-1"); status != domain.SyncSynced {
		t.Fatalf("expected synced after replay, got %v", status)
	}
}

func TestOptimisticRollbackReloadsFromStore(t *testing.T) {
	manager, _, store := newTestManager(t, true)
	ctx := context.Background()

	if err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue()), true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	store.setFail(true)
	err := manager.AddInvoice(ctx, sampleInvoice("inv-2", "INV-002", "Budi Santoso", futureDue()), true)
	store.setFail(false)
	if err == nil {
		t.Fatalf("expected write failure to surface")
	}

	invoices := manager.Invoices()
	if len(invoices) != 1 || invoices[0].ID != "inv-1" {
		t.Fatalf("speculative invoice must be rolled back, got %d invoices", len(invoices))
	}
	if manager.ErrorMessage() == "" {
		t.Fatalf("expected error message after failed write")
	}
	manager.ClearError()
	if manager.ErrorMessage() != "" {
		t.Fatalf("clear error should reset the message")
	}
}

func TestReplayRetainsFailedEntries(t *testing.T) {
	manager, monitor, store := newTestManager(t, false)
	ctx := context.Background()

	if err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue()), true); err != nil {
		t.Fatalf("offline add failed: %v", err)
	}
	if err := manager.AddInvoice(ctx, sampleInvoice("inv-2", "INV-002", "Budi Santoso", futureDue()), true); err != nil {
		t.Fatalf("offline add failed: %v", err)
	}

	store.setFail(true)
	monitor.Set(true)

	if got := len(manager.PendingChanges()); got != 2 {
		t.Fatalf("failed entries must stay queued, got %d", got)
	}
	if status, _ := manager.SyncStatusFor("inv-1"); status != domain.SyncFailed {
		t.Fatalf("expected failed status, got %v", status)
	}

	store.setFail(false)
	manager.ReplayPending(ctx)

	if got := len(manager.PendingChanges()); got != 0 {
		t.Fatalf("queue should drain once writes succeed, got %d", got)
	}
	durable, _ := store.GetList(ctx, kv.KeyInvoices)
	if len(durable) != 2 {
		t.Fatalf("expected 2 durable invoices after retry, got %d", len(durable))
	}
}

func TestOfflineDeleteWithoutCopyQueuesPlaceholder(t *testing.T) {
	manager, monitor, store := newTestManager(t, false)
	ctx := context.Background()

	if err := manager.DeleteInvoice(ctx, "inv-ghost", false); err != nil {
		t.Fatalf("offline delete of unknown id should queue, not fail: %v", err)
	}

	queue := manager.PendingChanges()
	if len(queue) != 1 || queue[0].Operation != domain.OpDelete {
		t.Fatalf("expected one queued delete, got %+v", queue)
	}
	if queue[0].Invoice.ID != "inv-ghost" || !queue[0].Invoice.Client.IsEmpty() {
		t.Fatalf("placeholder must carry only the id and an empty client")
	}

	monitor.Set(true)

	durable, _ := store.GetList(ctx, kv.KeyInvoices)
	if len(durable) != 0 {
		t.Fatalf("replaying a placeholder delete must never persist the placeholder")
	}
	if len(manager.PendingChanges()) != 0 {
		t.Fatalf("queue should be empty after replay")
	}
}

func TestDuplicateInvoice(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	source := sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue())
	source.Status = domain.StatusPaid
	if err := manager.AddInvoice(ctx, source, true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	dup, err := manager.DuplicateInvoice(ctx, "inv-1")
	if err != nil {
		t.Fatalf("duplicate failed: %v", err)
	}
	if dup.ID == source.ID || dup.InvoiceNumber == source.InvoiceNumber {
		t.Fatalf("duplicate must get a fresh id and number")
	}
	if dup.Status != domain.StatusDraft {
		t.Fatalf("duplicate must start as draft, got %s", dup.Status)
	}
	wantDue := dup.CreatedDate.AddDate(0, 0, 30)
	if !dup.DueDate.Equal(wantDue) {
		t.Fatalf("expected due date %v, got %v", wantDue, dup.DueDate)
	}
	if len(manager.Invoices()) != 2 {
		t.Fatalf("duplicate should join the collection")
	}
}

func TestSearchFilterAndSort(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	a := sampleInvoice("inv-a", "INV-001", "Ana Silva", futureDue())
	b := sampleInvoice("inv-b", "INV-002", "Budi Santoso", futureDue())
	b.Items = []domain.InvoiceItem{{Description: "Audit", Quantity: 1, Price: 500}}
	b.Status = domain.StatusSent
	c := sampleInvoice("inv-c", "INV-003", "Citra Dewi", futureDue())
	c.Notes = "urgent retainer"
	for _, inv := range []domain.Invoice{a, b, c} {
		if err := manager.AddInvoice(ctx, inv, true); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	if got := manager.SearchInvoices("ANA"); len(got) != 1 || got[0].ID != "inv-a" {
		t.Fatalf("case-insensitive client search failed, got %d results", len(got))
	}
	if got := manager.SearchInvoices("retainer"); len(got) != 1 || got[0].ID != "inv-c" {
		t.Fatalf("notes search failed")
	}
	if got := manager.SearchInvoices(""); len(got) != 3 {
		t.Fatalf("empty query should return everything")
	}

	if got := manager.FilterByStatus(domain.StatusSent); len(got) != 1 || got[0].ID != "inv-b" {
		t.Fatalf("status filter failed")
	}

	if got := manager.FilterByTotalRange(25, 25); len(got) != 2 {
		t.Fatalf("total range bounds must be inclusive, got %d", len(got))
	}

	sorted := manager.SortInvoices(domain.SortByTotal, false)
	if sorted[0].ID != "inv-b" {
		t.Fatalf("descending total sort should put the largest first, got %s", sorted[0].ID)
	}
	byName := manager.SortInvoices(domain.SortByClientName, true)
	if byName[0].Client.Name != "Ana Silva" {
		t.Fatalf("ascending client sort failed, got %s", byName[0].Client.Name)
	}
}

func TestFilterByDateRangePadsBoundaries(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	inv := sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue())
	inv.CreatedDate = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := manager.AddInvoice(ctx, inv, true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	start := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	if got := manager.FilterByDateRange(start, end); len(got) != 1 {
		t.Fatalf("the day before the range start must still match via padding")
	}

	farStart := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	if got := manager.FilterByDateRange(farStart, end.AddDate(0, 0, 5)); len(got) != 0 {
		t.Fatalf("padding is one day, not more")
	}
}

func TestBulkUpdateStatusStopsAtFirstFailure(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		inv := sampleInvoice(fmt.Sprintf("inv-%d", i), fmt.Sprintf("INV-%03d", i), "Ana Silva", futureDue())
		if err := manager.AddInvoice(ctx, inv, true); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	err := manager.BulkUpdateStatus(ctx, []string{"inv-1", "inv-missing", "inv-3"}, domain.StatusSent)
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected not-found abort, got %v", err)
	}

	first, _ := manager.GetInvoiceByID("inv-1")
	if first.Status != domain.StatusSent {
		t.Fatalf("changes before the failure must stay applied")
	}
	third, _ := manager.GetInvoiceByID("inv-3")
	if third.Status != domain.StatusDraft {
		t.Fatalf("changes after the failure must not run")
	}
}

func TestBulkDelete(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		inv := sampleInvoice(fmt.Sprintf("inv-%d", i), fmt.Sprintf("INV-%03d", i), "Ana Silva", futureDue())
		if err := manager.AddInvoice(ctx, inv, true); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	if err := manager.BulkDelete(ctx, []string{"inv-1", "inv-3"}); err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	invoices := manager.Invoices()
	if len(invoices) != 1 || invoices[0].ID != "inv-2" {
		t.Fatalf("expected only inv-2 to survive, got %d invoices", len(invoices))
	}
}

func TestExportAndImport(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	if err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue()), true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	export := manager.Export()
	if export.Version != domain.ExportVersion {
		t.Fatalf("expected export version %q, got %q", domain.ExportVersion, export.Version)
	}
	if len(export.Invoices) != 1 {
		t.Fatalf("expected 1 exported invoice")
	}

	fresh, _, _ := newTestManager(t, true)
	if err := fresh.Import(ctx, export.Invoices); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if len(fresh.Invoices()) != 1 {
		t.Fatalf("imported collection should load")
	}
}

func TestImportAbortsWholesaleOnInvalidRecord(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	if err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue()), true); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	bad := sampleInvoice("inv-bad", "INV-100", "", futureDue())
	good := sampleInvoice("inv-good", "INV-101", "Budi Santoso", futureDue())
	err := manager.Import(ctx, []domain.Invoice{good, bad})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation abort, got %v", err)
	}

	invoices := manager.Invoices()
	if len(invoices) != 1 || invoices[0].ID != "inv-1" {
		t.Fatalf("failed import must not write anything")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	monitor := connectivity.NewManual(true)
	manager := NewInvoiceManager(store, monitor)

	for i := 0; i < 3; i++ {
		if err := manager.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize %d failed: %v", i, err)
		}
	}
	if manager.LoadingState() != domain.LoadingSuccess {
		t.Fatalf("expected success loading state, got %v", manager.LoadingState())
	}
}

func TestObserversFireOnMutation(t *testing.T) {
	manager, _, _ := newTestManager(t, true)
	ctx := context.Background()

	fired := 0
	cancel := manager.Subscribe(func() { fired++ })

	if err := manager.AddInvoice(ctx, sampleInvoice("inv-1", "INV-001", "Ana Silva", futureDue()), true); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if fired == 0 {
		t.Fatalf("observer should fire on mutation")
	}

	cancel()
	before := fired
	if err := manager.DeleteInvoice(ctx, "inv-1", true); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if fired != before {
		t.Fatalf("cancelled observer must not fire")
	}
}
