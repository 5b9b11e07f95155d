package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/tangleapp/tangle-server/internal/domain"
)

// Key layout for tags. The name index keeps the name as the final segment so
// embedded colons in user-chosen names cannot collide with other keys; the
// index is only ever read with an exact Get, never a prefix scan.
//
//	tag:{tagID}                                -> Tag JSON
//	idx:tags:owner:{ownerID}:{tagID}           -> (empty)
//	idx:tags:parent:{ownerID}:{parent}:{tagID} -> (empty), parent is "root" for top-level tags
//	idx:tags:name:{ownerID}:{name}             -> tagID
const (
	tagKeyPrefix         = "tag:"
	tagOwnerIdxPrefix    = "idx:tags:owner:"
	tagParentIdxPrefix   = "idx:tags:parent:"
	tagNameIdxPrefix     = "idx:tags:name:"
	tagRootParentSegment = "root"
)

var (
	ErrTagNotFound          = errors.New("tag not found")
	ErrDuplicateTagName     = errors.New("tag name already in use")
	ErrInvalidTagParent     = errors.New("parent tag not found")
	ErrSelfTagParent        = errors.New("tag cannot be its own parent")
	ErrCircularTagReference = errors.New("tag parent would create a cycle")
	ErrTagTreeCorrupted     = errors.New("tag tree is corrupted")
)

// TagUpdate carries the mutable fields of a tag. Nil pointers leave the
// corresponding field unchanged; an empty ParentID moves the tag to the root.
type TagUpdate struct {
	Name     *string
	ParentID *string
	Color    *string
}

func tagKey(tagID string) []byte {
	return []byte(tagKeyPrefix + tagID)
}

func tagOwnerIndexPrefix(ownerID string) []byte {
	return []byte(tagOwnerIdxPrefix + ownerID + ":")
}

func tagOwnerIndexKey(ownerID, tagID string) []byte {
	return []byte(tagOwnerIdxPrefix + ownerID + ":" + tagID)
}

func tagParentIndexPrefix(ownerID, parentID string) []byte {
	if parentID == "" {
		parentID = tagRootParentSegment
	}
	return []byte(tagParentIdxPrefix + ownerID + ":" + parentID + ":")
}

func tagParentIndexKey(ownerID, parentID, tagID string) []byte {
	return append(tagParentIndexPrefix(ownerID, parentID), tagID...)
}

func tagNameIndexKey(ownerID, name string) []byte {
	return []byte(tagNameIdxPrefix + ownerID + ":" + name)
}

// CreateTag persists a new tag and registers it in the descendant cache of
// every ancestor, all within a single transaction.
func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.ownerLock(tag.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		tx, err := newTagTxn(txn, tag.OwnerID)
		if err != nil {
			return err
		}

		if err := checkNameAvailable(txn, tag.OwnerID, tag.Name, ""); err != nil {
			return err
		}

		if tag.ParentID != "" {
			if _, err := tx.get(tag.ParentID); err != nil {
				if errors.Is(err, ErrTagNotFound) {
					return ErrInvalidTagParent
				}
				return err
			}
		}

		chain, err := tx.ancestorChain(tag.ParentID)
		if err != nil {
			return err
		}
		tx.addToAncestors(chain, []string{tag.ID})

		tx.stage(tag)
		if err := tx.flush(); err != nil {
			return err
		}

		if err := txn.Set(tagOwnerIndexKey(tag.OwnerID, tag.ID), nil); err != nil {
			return fmt.Errorf("failed to write tag owner index: %w", err)
		}
		if err := txn.Set(tagParentIndexKey(tag.OwnerID, tag.ParentID, tag.ID), nil); err != nil {
			return fmt.Errorf("failed to write tag parent index: %w", err)
		}
		if err := txn.Set(tagNameIndexKey(tag.OwnerID, tag.Name), []byte(tag.ID)); err != nil {
			return fmt.Errorf("failed to write tag name index: %w", err)
		}
		return nil
	})
}

// UpdateTag applies a rename, recolor or move to an existing tag. A move
// shifts the tag's whole subtree: every old ancestor forgets the subtree,
// every new ancestor learns it. Returns the updated tag.
func (s *Store) UpdateTag(ctx context.Context, ownerID, tagID string, update TagUpdate) (*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	var updated *domain.Tag
	err := s.db.Update(func(txn *badger.Txn) error {
		tx, err := newTagTxn(txn, ownerID)
		if err != nil {
			return err
		}

		tag, err := tx.get(tagID)
		if err != nil {
			return err
		}

		renaming := update.Name != nil && *update.Name != tag.Name
		moving := update.ParentID != nil && *update.ParentID != tag.ParentID

		if renaming {
			if err := checkNameAvailable(txn, ownerID, *update.Name, tagID); err != nil {
				return err
			}
		}
		if moving {
			if err := tx.validateNewParent(tagID, *update.ParentID); err != nil {
				return err
			}
		}

		if renaming {
			if err := txn.Delete(tagNameIndexKey(ownerID, tag.Name)); err != nil {
				return fmt.Errorf("failed to delete tag name index: %w", err)
			}
			if err := txn.Set(tagNameIndexKey(ownerID, *update.Name), []byte(tagID)); err != nil {
				return fmt.Errorf("failed to write tag name index: %w", err)
			}
			tag.Name = *update.Name
		}

		if moving {
			subtree := tag.Subtree()

			oldChain, err := tx.ancestorChain(tag.ParentID)
			if err != nil {
				return err
			}
			tx.removeFromAncestors(oldChain, subtree)

			newChain, err := tx.ancestorChain(*update.ParentID)
			if err != nil {
				return err
			}
			tx.addToAncestors(newChain, subtree)

			if err := txn.Delete(tagParentIndexKey(ownerID, tag.ParentID, tagID)); err != nil {
				return fmt.Errorf("failed to delete tag parent index: %w", err)
			}
			if err := txn.Set(tagParentIndexKey(ownerID, *update.ParentID, tagID), nil); err != nil {
				return fmt.Errorf("failed to write tag parent index: %w", err)
			}
			tag.ParentID = *update.ParentID
		}

		if update.Color != nil {
			tag.Color = *update.Color
		}

		tag.Touch()
		tx.stage(tag)
		if err := tx.flush(); err != nil {
			return err
		}

		updated = tag
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTag removes a tag and splices its direct children onto the deleted
// tag's parent. Only the deleted id leaves the ancestors' descendant caches;
// the children and their subtrees remain descendants of those same ancestors.
func (s *Store) DeleteTag(ctx context.Context, ownerID, tagID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	return s.db.Update(func(txn *badger.Txn) error {
		tx, err := newTagTxn(txn, ownerID)
		if err != nil {
			return err
		}

		tag, err := tx.get(tagID)
		if err != nil {
			return err
		}

		chain, err := tx.ancestorChain(tag.ParentID)
		if err != nil {
			return err
		}
		tx.removeFromAncestors(chain, []string{tagID})

		for _, childID := range tx.directChildIDs(tagID) {
			child, err := tx.get(childID)
			if errors.Is(err, ErrTagNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			if err := txn.Delete(tagParentIndexKey(ownerID, tagID, childID)); err != nil {
				return fmt.Errorf("failed to delete tag parent index: %w", err)
			}
			if err := txn.Set(tagParentIndexKey(ownerID, tag.ParentID, childID), nil); err != nil {
				return fmt.Errorf("failed to write tag parent index: %w", err)
			}

			child.ParentID = tag.ParentID
			child.Touch()
			tx.stage(child)
		}

		tx.evict(tagID)
		if err := tx.flush(); err != nil {
			return err
		}

		if err := txn.Delete(tagKey(tagID)); err != nil {
			return fmt.Errorf("failed to delete tag: %w", err)
		}
		if err := txn.Delete(tagOwnerIndexKey(ownerID, tagID)); err != nil {
			return fmt.Errorf("failed to delete tag owner index: %w", err)
		}
		if err := txn.Delete(tagParentIndexKey(ownerID, tag.ParentID, tagID)); err != nil {
			return fmt.Errorf("failed to delete tag parent index: %w", err)
		}
		if err := txn.Delete(tagNameIndexKey(ownerID, tag.Name)); err != nil {
			return fmt.Errorf("failed to delete tag name index: %w", err)
		}
		return nil
	})
}

// GetTag retrieves a single tag scoped to an owner.
func (s *Store) GetTag(ctx context.Context, ownerID, tagID string) (*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tag domain.Tag
	err := s.get(tagKey(tagID), &tag)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	if tag.OwnerID != ownerID {
		return nil, ErrTagNotFound
	}
	return &tag, nil
}

// FindTagByName looks a tag up by its exact name within an owner's tree.
func (s *Store) FindTagByName(ctx context.Context, ownerID, name string) (*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tagID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tagNameIndexKey(ownerID, name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			tagID = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up tag name: %w", err)
	}
	return s.GetTag(ctx, ownerID, tagID)
}

// ListTagsByOwner returns all of an owner's tags sorted by name, then id.
func (s *Store) ListTagsByOwner(ctx context.Context, ownerID string) ([]*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tagIDs []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := tagOwnerIndexPrefix(ownerID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // We only need keys.
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			tagIDs = append(tagIDs, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	tags := []*domain.Tag{}
	for _, tagID := range tagIDs {
		tag, err := s.GetTag(ctx, ownerID, tagID)
		if errors.Is(err, ErrTagNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Name != tags[j].Name {
			return tags[i].Name < tags[j].Name
		}
		return tags[i].ID < tags[j].ID
	})
	return tags, nil
}

// ListDirectChildren returns the immediate children of a tag. An empty
// parentID lists the owner's root tags.
func (s *Store) ListDirectChildren(ctx context.Context, ownerID, parentID string) ([]*domain.Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var childIDs []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := tagParentIndexPrefix(ownerID, parentID)

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			childIDs = append(childIDs, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tag children: %w", err)
	}

	children := []*domain.Tag{}
	for _, childID := range childIDs {
		child, err := s.GetTag(ctx, ownerID, childID)
		if errors.Is(err, ErrTagNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	sort.Slice(children, func(i, j int) bool {
		if children[i].Name != children[j].Name {
			return children[i].Name < children[j].Name
		}
		return children[i].ID < children[j].ID
	})
	return children, nil
}

// CountTagsByOwner counts the tags in one owner's tree.
func (s *Store) CountTagsByOwner(ctx context.Context, ownerID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		n, err := countOwnerTags(txn, ownerID)
		count = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count tags: %w", err)
	}
	return count, nil
}

// checkNameAvailable fails with ErrDuplicateTagName when another tag of the
// same owner already holds the name. Run inside the mutating transaction so
// the uniqueness check and the write are one atomic step.
func checkNameAvailable(txn *badger.Txn, ownerID, name, selfID string) error {
	item, err := txn.Get(tagNameIndexKey(ownerID, name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check tag name: %w", err)
	}

	var holder string
	err = item.Value(func(val []byte) error {
		holder = string(val)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to check tag name: %w", err)
	}

	if holder != selfID {
		return ErrDuplicateTagName
	}
	return nil
}
