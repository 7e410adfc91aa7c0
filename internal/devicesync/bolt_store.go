package devicesync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/lightkeepers/fieldsync/internal/model"
)

const mutationBucket = "mutations"

// BoltStore persists mutation records in a bbolt file keyed by ULID. List
// orders by CreatedAt rather than trusting key order, so replay follows
// creation order exactly.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(mutationBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create mutation bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(_ context.Context, m model.Mutation) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mutation: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(mutationBucket)).Put([]byte(m.ID), raw)
	})
}

func (s *BoltStore) Update(ctx context.Context, m model.Mutation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(mutationBucket))
		if b.Get([]byte(m.ID)) == nil {
			return ErrNotFound
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal mutation: %w", err)
		}
		return b.Put([]byte(m.ID), raw)
	})
}

func (s *BoltStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(mutationBucket)).Delete([]byte(id))
	})
}

func (s *BoltStore) List(_ context.Context) ([]model.Mutation, error) {
	var records []model.Mutation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(mutationBucket)).ForEach(func(_, v []byte) error {
			var m model.Mutation
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decode mutation: %w", err)
			}
			records = append(records, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}
