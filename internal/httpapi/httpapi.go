package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
	"invoicely/backend/internal/pdf"
	"invoicely/backend/internal/service"
	"invoicely/backend/internal/xid"
)

type API struct {
	invoices      *service.InvoiceManager
	clients       *service.ClientRegistry
	settings      *service.SettingsStore
	renderer      *pdf.Renderer
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(invoices *service.InvoiceManager, clients *service.ClientRegistry, settings *service.SettingsStore, renderer *pdf.Renderer, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		invoices:      invoices,
		clients:       clients,
		settings:      settings,
		renderer:      renderer,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type contextKey string

const actorContextKey contextKey = "actor"

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func actorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(domain.Actor)
	return actor, ok
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/invoices", a.requireAuth(a.handleInvoices, "staff", "admin"))
	mux.HandleFunc("/api/v1/invoices/", a.requireAuth(a.handleInvoiceActions, "staff", "admin"))
	mux.HandleFunc("/api/v1/sync/status", a.requireAuth(a.handleSyncStatus, "staff", "admin"))
	mux.HandleFunc("/api/v1/sync/replay", a.requireAuth(a.handleSyncReplay, "staff", "admin"))
	mux.HandleFunc("/api/v1/clients", a.requireAuth(a.handleClients, "staff", "admin"))
	mux.HandleFunc("/api/v1/clients/", a.requireAuth(a.handleClientActions, "staff", "admin"))
	mux.HandleFunc("/api/v1/settings", a.requireAuth(a.handleSettings, "staff", "admin"))
	mux.HandleFunc("/api/v1/settings/reset", a.requireAuth(a.handleSettingsReset, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := actorFromContext(r.Context())
	if !ok || actor.Role != "admin" {
		writeError(w, http.StatusForbidden, errors.New("admin role required"))
		return false
	}
	return true
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"offline": a.invoices.IsOffline(),
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleInvoices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.handleInvoiceList(w, r)
	case http.MethodPost:
		var inv domain.Invoice
		if err := decodeJSON(r, &inv); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		now := time.Now().UTC()
		if strings.TrimSpace(inv.ID) == "" {
			inv.ID = xid.New("inv")
		}
		if strings.TrimSpace(inv.InvoiceNumber) == "" {
			inv.InvoiceNumber = xid.InvoiceNumber(now)
		}
		if inv.CreatedDate.IsZero() {
			inv.CreatedDate = now
		}
		if inv.Status == "" {
			inv.Status = domain.StatusDraft
		}

		if err := a.invoices.AddInvoice(r.Context(), inv, true); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"invoice": inv})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleInvoiceList composes the manager's search, filter, and sort views.
// Filters intersect; sorting is applied last.
func (a *API) handleInvoiceList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	list := a.invoices.SearchInvoices(query.Get("q"))

	if rawStatus := strings.TrimSpace(query.Get("status")); rawStatus != "" {
		statuses := make([]domain.InvoiceStatus, 0, 4)
		for _, part := range strings.Split(rawStatus, ",") {
			status := domain.InvoiceStatus(strings.TrimSpace(part))
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", part))
				return
			}
			statuses = append(statuses, status)
		}
		list = intersectInvoices(list, a.invoices.FilterByStatus(statuses...))
	}

	fromRaw, toRaw := strings.TrimSpace(query.Get("from")), strings.TrimSpace(query.Get("to"))
	if fromRaw != "" || toRaw != "" {
		from, to, err := parseDateRange(fromRaw, toRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		list = intersectInvoices(list, a.invoices.FilterByDateRange(from, to))
	}

	minRaw, maxRaw := strings.TrimSpace(query.Get("min")), strings.TrimSpace(query.Get("max"))
	if minRaw != "" || maxRaw != "" {
		min, max, err := parseTotalRange(minRaw, maxRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		list = intersectInvoices(list, a.invoices.FilterByTotalRange(min, max))
	}

	if sortField := strings.TrimSpace(query.Get("sort")); sortField != "" {
		ascending := !strings.EqualFold(strings.TrimSpace(query.Get("order")), "desc")
		sorted := a.invoices.SortInvoices(domain.InvoiceSortField(sortField), ascending)
		list = intersectInvoices(sorted, list)
	}

	writeJSON(w, http.StatusOK, map[string]any{"invoices": list})
}

func (a *API) handleInvoiceActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/invoices/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("invoice id required"))
		return
	}

	switch tail {
	case "export":
		a.handleExport(w, r)
		return
	case "import":
		a.handleImport(w, r)
		return
	case "bulk/status":
		a.handleBulkStatus(w, r)
		return
	case "bulk/delete":
		a.handleBulkDelete(w, r)
		return
	}

	if id, ok := strings.CutSuffix(tail, "/status"); ok {
		a.handleInvoiceStatus(w, r, strings.Trim(id, "/"))
		return
	}
	if id, ok := strings.CutSuffix(tail, "/duplicate"); ok {
		a.handleInvoiceDuplicate(w, r, strings.Trim(id, "/"))
		return
	}
	if id, ok := strings.CutSuffix(tail, "/pdf"); ok {
		a.handleInvoicePDF(w, r, strings.Trim(id, "/"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		inv, ok := a.invoices.GetInvoiceByID(tail)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("invoice %s: %w", tail, kv.ErrNotFound))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoice": inv})
	case http.MethodPut:
		var inv domain.Invoice
		if err := decodeJSON(r, &inv); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		inv.ID = tail
		if err := a.invoices.UpdateInvoice(r.Context(), inv, true); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"invoice": inv})
	case http.MethodDelete:
		if err := a.invoices.DeleteInvoice(r.Context(), tail, true); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

type invoiceStatusRequest struct {
	Status domain.InvoiceStatus `json:"status"`
}

func (a *API) handleInvoiceStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req invoiceStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.invoices.UpdateInvoiceStatus(r.Context(), id, req.Status); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	inv, _ := a.invoices.GetInvoiceByID(id)
	writeJSON(w, http.StatusOK, map[string]any{"invoice": inv})
}

func (a *API) handleInvoiceDuplicate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	dup, err := a.invoices.DuplicateInvoice(r.Context(), id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"invoice": dup})
}

func (a *API) handleInvoicePDF(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	inv, ok := a.invoices.GetInvoiceByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("invoice %s: %w", id, kv.ErrNotFound))
		return
	}

	document, err := a.renderer.Render(inv, a.settings.Settings())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", inv.InvoiceNumber+".pdf"))
	_, _ = w.Write(document)
}

type bulkStatusRequest struct {
	IDs    []string             `json:"ids"`
	Status domain.InvoiceStatus `json:"status"`
}

func (a *API) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}

	var req bulkStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.invoices.BulkUpdateStatus(r.Context(), req.IDs, req.Status); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(req.IDs)})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}

	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.invoices.BulkDelete(r.Context(), req.IDs); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": len(req.IDs)})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, a.invoices.Export())
}

func (a *API) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.requireAdmin(w, r) {
		return
	}

	var payload domain.InvoiceExport
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.invoices.Import(r.Context(), payload.Invoices); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "imported": len(payload.Invoices)})
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.syncStatusPayload())
}

func (a *API) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	a.invoices.ReplayPending(r.Context())
	writeJSON(w, http.StatusOK, a.syncStatusPayload())
}

func (a *API) syncStatusPayload() map[string]any {
	statuses := make(map[string]string)
	for id, status := range a.invoices.SyncStatuses() {
		statuses[id] = status.String()
	}
	queue := a.invoices.PendingChanges()
	return map[string]any{
		"offline":  a.invoices.IsOffline(),
		"pending":  len(queue),
		"queue":    queue,
		"statuses": statuses,
	}
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"clients": a.clients.SearchClients(r.URL.Query().Get("q")),
		})
	case http.MethodPost:
		var client domain.Client
		if err := decodeJSON(r, &client); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(client.ID) == "" {
			client = service.NewClient(client.Name, client.Email, client.Address, client.Phone)
		}

		if err := a.clients.AddClient(r.Context(), client); err != nil {
			writeError(w, statusForError(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"client": client})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleClientActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/clients/"
	id := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("client id required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		client, ok := a.clients.GetClientByID(id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("client %s: %w", id, kv.ErrNotFound))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"client": client})
	case http.MethodPut:
		var client domain.Client
		if err := decodeJSON(r, &client); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		client.ID = id
		a.clients.UpdateClient(r.Context(), client)
		writeJSON(w, http.StatusOK, map[string]any{"client": client})
	case http.MethodDelete:
		a.clients.DeleteClient(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"settings": a.settings.Settings()})
	case http.MethodPut:
		var settings domain.CompanySettings
		if err := decodeJSON(r, &settings); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.settings.UpdateCompanySettings(r.Context(), settings); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSettingsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.settings.ResetToDefaults(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": a.settings.Settings()})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func statusForError(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func intersectInvoices(ordered []domain.Invoice, allowed []domain.Invoice) []domain.Invoice {
	keep := make(map[string]bool, len(allowed))
	for _, inv := range allowed {
		keep[inv.ID] = true
	}
	out := make([]domain.Invoice, 0, len(ordered))
	for _, inv := range ordered {
		if keep[inv.ID] {
			out = append(out, inv)
		}
	}
	return out
}

func parseDateRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC().AddDate(100, 0, 0)
	var err error
	if fromRaw != "" {
		if from, err = parseDate(fromRaw); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
		}
	}
	if toRaw != "" {
		if to, err = parseDate(toRaw); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
		}
	}
	return from, to, nil
}

func parseDate(raw string) (time.Time, error) {
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseTotalRange(minRaw, maxRaw string) (float64, float64, error) {
	min := 0.0
	max := math.MaxFloat64
	var err error
	if minRaw != "" {
		if min, err = strconv.ParseFloat(minRaw, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid min total: %w", err)
		}
	}
	if maxRaw != "" {
		if max, err = strconv.ParseFloat(maxRaw, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid max total: %w", err)
		}
	}
	return min, max, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are user-facing; 5xx get a generic body so internals
	// never leak to clients.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
