package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketLight = []byte("light")
	keyState    = []byte("state")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLight)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveLightState(st *LightState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLight)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLight)
		}
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put(keyState, data)
	})
}

func (s *BoltStore) GetLightState() (*LightState, error) {
	var st LightState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLight)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLight)
		}
		data := b.Get(keyState)
		if data == nil {
			return fmt.Errorf("light state: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
