package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"invoicely/backend/internal/domain"
	"invoicely/backend/internal/kv"
)

// KVUserStore persists user accounts as a JSON array under a single key in
// the kv store.
type KVUserStore struct {
	store kv.Store
}

func NewKVUserStore(store kv.Store) *KVUserStore {
	return &KVUserStore{store: store}
}

func (s *KVUserStore) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	raw, err := s.store.Get(ctx, kv.KeyUsers)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var users []domain.UserAccount
	if err := json.Unmarshal([]byte(raw), &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *KVUserStore) UpdateUserPassword(ctx context.Context, username string, password string) error {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			users[i].Password = password
			return s.saveUsers(ctx, users)
		}
	}
	return fmt.Errorf("user %s: %w", username, kv.ErrNotFound)
}

// EnsureAdmin seeds a default admin account when no users exist yet, so a
// fresh deployment can log in.
func (s *KVUserStore) EnsureAdmin(ctx context.Context, password string) error {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.saveUsers(ctx, []domain.UserAccount{{
		Username:  "admin",
		Password:  hashed,
		Role:      "admin",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}})
}

func (s *KVUserStore) saveUsers(ctx context.Context, users []domain.UserAccount) error {
	encoded, err := json.Marshal(users)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, kv.KeyUsers, string(encoded))
}
