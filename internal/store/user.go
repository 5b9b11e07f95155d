package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/tangleapp/tangle-server/internal/domain"
)

const (
	userPrefix        = "user:"
	userByEmailPrefix = "idx:users:email:" // For login lookups
)

var (
	// ErrUserNotFound is returned when a user cannot be found by ID or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when attempting to create a user with an existing ID.
	ErrUserExists = errors.New("user already exists")
	// ErrEmailExists is returned when attempting to create a user with an email that's already in use.
	ErrEmailExists = errors.New("email already in use")
)

// CreateUser creates a new user account.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	key := []byte(userPrefix + user.ID)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check user exists: %w", err)
	}
	if exists {
		return ErrUserExists
	}

	emailKey := []byte(userByEmailPrefix + normalizeEmail(user.Email))

	return s.db.Update(func(txn *badger.Txn) error {
		// Check if email is already in use
		_, err := txn.Get(emailKey)
		if err == nil {
			return ErrEmailExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check email exists: %w", err)
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}

		return txn.Set(emailKey, []byte(user.ID))
	})
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	key := []byte(userPrefix + id)

	var user domain.User
	if err := s.get(key, &user); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	emailKey := []byte(userByEmailPrefix + normalizeEmail(email))

	var userID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			userID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	return s.GetUser(ctx, userID)
}

// UpdateUser updates an existing user, maintaining the email index when the
// address changes.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	key := []byte(userPrefix + user.ID)

	oldUser, err := s.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}

	user.Touch()

	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}

		if normalizeEmail(oldUser.Email) != normalizeEmail(user.Email) {
			oldEmailKey := []byte(userByEmailPrefix + normalizeEmail(oldUser.Email))
			if err := txn.Delete(oldEmailKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			newEmailKey := []byte(userByEmailPrefix + normalizeEmail(user.Email))
			_, err := txn.Get(newEmailKey)
			if err == nil {
				return ErrEmailExists
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check new email: %w", err)
			}

			if err := txn.Set(newEmailKey, []byte(user.ID)); err != nil {
				return err
			}
		}

		return nil
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
