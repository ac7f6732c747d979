package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
	"invoicely/backend/internal/validation"
	"invoicely/backend/internal/xid"
)

// ClientRegistry owns the client collection. Persistence is best-effort:
// mutations update memory and notify first, then write to the store, logging
// a failed write instead of surfacing it.
type ClientRegistry struct {
	notifier

	store kv.Store

	mu      sync.Mutex
	clients []domain.Client
}

func NewClientRegistry(store kv.Store) *ClientRegistry {
	return &ClientRegistry{store: store}
}

// NewClient builds a client record with a fresh identifier.
func NewClient(name, email, address, phone string) domain.Client {
	return domain.Client{
		ID:      xid.New("cl"),
		Name:    name,
		Email:   email,
		Address: address,
		Phone:   phone,
	}
}

// LoadClients reads the stored collection, migrating the two legacy
// double-encoded shapes to canonical form and persisting the canonical form
// back once. An unrecoverable payload logs and leaves the collection empty.
func (r *ClientRegistry) LoadClients(ctx context.Context) {
	raw, err := r.store.Get(ctx, kv.KeyClients)

	r.mu.Lock()
	switch {
	case err == kv.ErrNotFound:
		r.clients = nil
	case err != nil:
		log.Printf("[clients] WARN: load clients: %v", err)
		r.clients = nil
	default:
		clients, migrated, derr := decodeClients(raw)
		if derr != nil {
			log.Printf("[clients] WARN: decode clients, starting empty: %v", derr)
			r.clients = nil
			break
		}
		r.clients = clients
		if migrated {
			log.Printf("[clients] migrated %d legacy client records", len(clients))
			r.persistLocked(ctx)
		}
	}
	r.mu.Unlock()
	r.notify()
}

// decodeClients handles three payload shapes: the canonical JSON array, a
// whole collection double-encoded as a JSON string, and array elements
// individually encoded as JSON strings.
func decodeClients(raw string) ([]domain.Client, bool, error) {
	payload := []byte(strings.TrimSpace(raw))
	migrated := false

	if len(payload) > 0 && payload[0] == '"' {
		var inner string
		if err := json.Unmarshal(payload, &inner); err != nil {
			return nil, false, fmt.Errorf("unwrap collection: %w", err)
		}
		payload = []byte(inner)
		migrated = true
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(payload, &elements); err != nil {
		return nil, false, err
	}

	clients := make([]domain.Client, 0, len(elements))
	for i, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) > 0 && element[0] == '"' {
			var inner string
			if err := json.Unmarshal(element, &inner); err != nil {
				return nil, false, fmt.Errorf("unwrap client %d: %w", i, err)
			}
			element = []byte(inner)
			migrated = true
		}
		var client domain.Client
		if err := json.Unmarshal(element, &client); err != nil {
			return nil, false, fmt.Errorf("decode client %d: %w", i, err)
		}
		clients = append(clients, client)
	}
	return clients, migrated, nil
}

// AddClient validates the name and appends the client.
func (r *ClientRegistry) AddClient(ctx context.Context, client domain.Client) error {
	if res := validation.Validate(client.Name, "client name"); !res.IsValid {
		return &domain.ValidationError{Field: "name", Kind: res.Kind, Message: res.ErrorMessage}
	}
	if strings.TrimSpace(client.Email) != "" {
		if res := validation.Validate(client.Email, "client email"); !res.IsValid {
			return &domain.ValidationError{Field: "email", Kind: res.Kind, Message: res.ErrorMessage}
		}
	}

	r.mu.Lock()
	r.clients = append(r.clients, client)
	r.persistLocked(ctx)
	r.mu.Unlock()
	r.notify()
	return nil
}

// UpdateClient replaces a client by id. An unknown id is a silent no-op.
func (r *ClientRegistry) UpdateClient(ctx context.Context, client domain.Client) {
	r.mu.Lock()
	for i := range r.clients {
		if r.clients[i].ID == client.ID {
			r.clients[i] = client
			r.persistLocked(ctx)
			break
		}
	}
	r.mu.Unlock()
	r.notify()
}

func (r *ClientRegistry) DeleteClient(ctx context.Context, id string) {
	r.mu.Lock()
	out := make([]domain.Client, 0, len(r.clients))
	for _, client := range r.clients {
		if client.ID != id {
			out = append(out, client)
		}
	}
	r.clients = out
	r.persistLocked(ctx)
	r.mu.Unlock()
	r.notify()
}

// SearchClients matches name or email case-insensitively. An empty query
// returns the whole collection.
func (r *ClientRegistry) SearchClients(query string) []domain.Client {
	needle := strings.ToLower(strings.TrimSpace(query))

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Client, 0, len(r.clients))
	for _, client := range r.clients {
		if needle == "" ||
			strings.Contains(strings.ToLower(client.Name), needle) ||
			strings.Contains(strings.ToLower(client.Email), needle) {
			out = append(out, client)
		}
	}
	return out
}

func (r *ClientRegistry) GetClientByID(id string) (domain.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, client := range r.clients {
		if client.ID == id {
			return client, true
		}
	}
	return domain.Client{}, false
}

func (r *ClientRegistry) Clients() []domain.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Client(nil), r.clients...)
}

func (r *ClientRegistry) persistLocked(ctx context.Context) {
	encoded, err := json.Marshal(r.clients)
	if err != nil {
		log.Printf("[clients] WARN: encode clients: %v", err)
		return
	}
	if err := r.store.Set(ctx, kv.KeyClients, string(encoded)); err != nil {
		log.Printf("[clients] WARN: persist clients: %v", err)
	}
}
