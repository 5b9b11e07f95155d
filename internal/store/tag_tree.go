package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tangleapp/tangle-server/internal/domain"
)

// tagTxn is a unit-of-work wrapper around a Badger transaction scoped to one
// owner's tag tree. Every tag is loaded at most once per transaction, so when
// two ancestor chains overlap (a move between cousins, say) both chains patch
// the same in-memory copy and the patches compose instead of clobbering each
// other. Mutated tags are staged and written back in one flush at the end.
type tagTxn struct {
	txn     *badger.Txn
	ownerID string

	loaded map[string]*domain.Tag
	dirty  map[string]struct{}

	// maxWalk bounds ancestor chain traversal. A well-formed chain for an
	// owner with N tags has at most N links, so exceeding it means the
	// parent pointers form a loop on disk.
	maxWalk int
}

func newTagTxn(txn *badger.Txn, ownerID string) (*tagTxn, error) {
	count, err := countOwnerTags(txn, ownerID)
	if err != nil {
		return nil, err
	}
	return &tagTxn{
		txn:     txn,
		ownerID: ownerID,
		loaded:  make(map[string]*domain.Tag),
		dirty:   make(map[string]struct{}),
		maxWalk: count,
	}, nil
}

// get loads a tag through the identity cache. Tags belonging to a different
// owner are treated as not found.
func (tx *tagTxn) get(tagID string) (*domain.Tag, error) {
	if tag, ok := tx.loaded[tagID]; ok {
		if tag == nil {
			return nil, ErrTagNotFound
		}
		return tag, nil
	}

	item, err := tx.txn.Get(tagKey(tagID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		tx.loaded[tagID] = nil
		return nil, ErrTagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tag: %w", err)
	}

	var tag domain.Tag
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &tag)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tag: %w", err)
	}

	if tag.OwnerID != tx.ownerID {
		tx.loaded[tagID] = nil
		return nil, ErrTagNotFound
	}

	tx.loaded[tagID] = &tag
	return &tag, nil
}

// stage marks a tag for write-back at flush. The tag is also entered into the
// identity cache so later loads in the same transaction observe the mutation.
func (tx *tagTxn) stage(tag *domain.Tag) {
	tx.loaded[tag.ID] = tag
	tx.dirty[tag.ID] = struct{}{}
}

// evict drops a tag from the cache and dirty set. Used after deleting its
// record so flush does not resurrect it.
func (tx *tagTxn) evict(tagID string) {
	tx.loaded[tagID] = nil
	delete(tx.dirty, tagID)
}

// flush writes every staged tag record back to the transaction.
func (tx *tagTxn) flush() error {
	for tagID := range tx.dirty {
		tag := tx.loaded[tagID]
		if tag == nil {
			continue
		}
		data, err := json.Marshal(tag)
		if err != nil {
			return fmt.Errorf("failed to marshal tag: %w", err)
		}
		if err := tx.txn.Set(tagKey(tagID), data); err != nil {
			return fmt.Errorf("failed to write tag: %w", err)
		}
	}
	return nil
}

// ancestorChain walks parent pointers starting at startParentID and returns
// the chain from nearest ancestor to root. A missing ancestor ends the walk
// early; a walk longer than the owner's tag count reports corruption.
func (tx *tagTxn) ancestorChain(startParentID string) ([]*domain.Tag, error) {
	var chain []*domain.Tag
	current := startParentID
	for current != "" {
		tag, err := tx.get(current)
		if errors.Is(err, ErrTagNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, tag)
		if len(chain) > tx.maxWalk {
			return nil, fmt.Errorf("%w: ancestor walk exceeded %d tags starting at %s",
				ErrTagTreeCorrupted, tx.maxWalk, startParentID)
		}
		current = tag.ParentID
	}
	return chain, nil
}

// addToAncestors adds tagIDs to the descendant cache of every tag in chain.
func (tx *tagTxn) addToAncestors(chain []*domain.Tag, tagIDs []string) {
	for _, ancestor := range chain {
		ancestor.AddDescendants(tagIDs)
		tx.stage(ancestor)
	}
}

// removeFromAncestors removes tagIDs from the descendant cache of every tag
// in chain.
func (tx *tagTxn) removeFromAncestors(chain []*domain.Tag, tagIDs []string) {
	for _, ancestor := range chain {
		ancestor.RemoveDescendants(tagIDs)
		tx.stage(ancestor)
	}
}

// validateNewParent checks whether candidateParentID is a legal parent for
// tagID. An empty candidate (root placement) is always legal.
func (tx *tagTxn) validateNewParent(tagID, candidateParentID string) error {
	if candidateParentID == "" {
		return nil
	}
	if candidateParentID == tagID {
		return ErrSelfTagParent
	}

	parent, err := tx.get(candidateParentID)
	if errors.Is(err, ErrTagNotFound) {
		return ErrInvalidTagParent
	}
	if err != nil {
		return err
	}

	// The candidate's ancestor chain must not pass through the tag being
	// reparented, otherwise the move closes a cycle.
	chain, err := tx.ancestorChain(parent.ParentID)
	if err != nil {
		return err
	}
	for _, ancestor := range chain {
		if ancestor.ID == tagID {
			return ErrCircularTagReference
		}
	}
	return nil
}

// directChildIDs lists the ids of tags whose parent index entry points at
// parentID, entirely within the transaction.
func (tx *tagTxn) directChildIDs(parentID string) []string {
	prefix := tagParentIndexPrefix(tx.ownerID, parentID)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().Key()
		ids = append(ids, string(key[len(prefix):]))
	}
	return ids
}

// countOwnerTags counts the owner index entries for one owner.
func countOwnerTags(txn *badger.Txn, ownerID string) (int, error) {
	prefix := tagOwnerIndexPrefix(ownerID)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		count++
	}
	return count, nil
}
