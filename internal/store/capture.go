package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/tangleapp/tangle-server/internal/domain"
)

const (
	capturePrefix        = "capture:"
	captureByOwnerPrefix = "idx:captures:owner:"
)

// ErrCaptureNotFound is returned when a capture cannot be found by ID.
var ErrCaptureNotFound = errors.New("capture not found")

func captureKey(captureID string) []byte {
	return []byte(capturePrefix + captureID)
}

func captureOwnerIndexPrefix(ownerID string) []byte {
	return []byte(captureByOwnerPrefix + ownerID + ":")
}

func captureOwnerIndexKey(ownerID, captureID string) []byte {
	return append(captureOwnerIndexPrefix(ownerID), captureID...)
}

// CreateCapture persists a new capture and its owner index entry.
func (s *Store) CreateCapture(ctx context.Context, capture *domain.Capture) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(capture)
		if err != nil {
			return fmt.Errorf("marshal capture: %w", err)
		}
		if err := txn.Set(captureKey(capture.ID), data); err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		return txn.Set(captureOwnerIndexKey(capture.OwnerID, capture.ID), nil)
	})
}

// GetCapture retrieves a single capture scoped to an owner.
func (s *Store) GetCapture(ctx context.Context, ownerID, captureID string) (*domain.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var capture domain.Capture
	err := s.get(captureKey(captureID), &capture)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCaptureNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get capture: %w", err)
	}
	if capture.OwnerID != ownerID {
		return nil, ErrCaptureNotFound
	}
	return &capture, nil
}

// UpdateCapture writes a capture back.
func (s *Store) UpdateCapture(ctx context.Context, capture *domain.Capture) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := s.exists(captureKey(capture.ID))
	if err != nil {
		return fmt.Errorf("check capture exists: %w", err)
	}
	if !exists {
		return ErrCaptureNotFound
	}

	if err := s.set(captureKey(capture.ID), capture); err != nil {
		return fmt.Errorf("update capture: %w", err)
	}
	return nil
}

// DeleteCapture removes a capture and its owner index entry.
func (s *Store) DeleteCapture(ctx context.Context, ownerID, captureID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Ownership check before touching anything
	if _, err := s.GetCapture(ctx, ownerID, captureID); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(captureKey(captureID)); err != nil {
			return fmt.Errorf("delete capture: %w", err)
		}
		if err := txn.Delete(captureOwnerIndexKey(ownerID, captureID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete capture owner index: %w", err)
		}
		return nil
	})
}

// ListCapturesByOwner returns all of an owner's captures, newest first.
func (s *Store) ListCapturesByOwner(ctx context.Context, ownerID string) ([]*domain.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var captureIDs []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := captureOwnerIndexPrefix(ownerID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // We only need keys.
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			captureIDs = append(captureIDs, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}

	captures := []*domain.Capture{}
	for _, captureID := range captureIDs {
		capture, err := s.GetCapture(ctx, ownerID, captureID)
		if errors.Is(err, ErrCaptureNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		captures = append(captures, capture)
	}

	sort.Slice(captures, func(i, j int) bool {
		if !captures[i].CreatedAt.Equal(captures[j].CreatedAt) {
			return captures[i].CreatedAt.After(captures[j].CreatedAt)
		}
		return captures[i].ID < captures[j].ID
	})
	return captures, nil
}
