package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kdudkov/tileview/pkg/model"
)

var _ Store = &BoltStore{}

// bolt takes an exclusive file lock, so sources sharing a file share the handle.
var bolts = &boltPool{dbs: make(map[string]*boltRef)}

type boltRef struct {
	db   *bolt.DB
	refs int
}

type boltPool struct {
	mx  sync.Mutex
	dbs map[string]*boltRef
}

func (p *boltPool) open(path string) (*bolt.DB, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if r, ok := p.dbs[path]; ok {
		r.refs++
		return r.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	p.dbs[path] = &boltRef{db: db, refs: 1}

	return db, nil
}

func (p *boltPool) release(path string) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	r, ok := p.dbs[path]
	if !ok {
		return nil
	}

	if r.refs--; r.refs > 0 {
		return nil
	}

	delete(p.dbs, path)

	return r.db.Close()
}

// BoltStore keeps tiles of one source in a bucket of a bbolt file.
type BoltStore struct {
	db     *bolt.DB
	path   string
	bucket []byte
}

func NewBoltStore(path, bucket string) (*BoltStore, error) {
	db, err := bolts.open(path)
	if err != nil {
		return nil, err
	}

	s := &BoltStore{db: db, path: path, bucket: []byte(bucket)}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})

	if err != nil {
		_ = bolts.release(path)
		return nil, err
	}

	return s, nil
}

func (s *BoltStore) get(a model.Address) []byte {
	var data []byte

	_ = s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(s.bucket); b != nil {
			if v := b.Get([]byte(a.Key())); v != nil {
				data = append([]byte(nil), v...)
			}
		}

		return nil
	})

	return data
}

func (s *BoltStore) Has(a model.Address) bool {
	found := false

	_ = s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(s.bucket); b != nil {
			found = b.Get([]byte(a.Key())) != nil
		}

		return nil
	})

	return found
}

func (s *BoltStore) Load(a model.Address) ([]byte, error) {
	data := s.get(a)

	if data == nil {
		return nil, ErrNotFound
	}

	if _, err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Key(), err)
	}

	return data, nil
}

func (s *BoltStore) Save(a model.Address, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errors.New("no bucket " + string(s.bucket))
		}

		return b.Put([]byte(a.Key()), data)
	})
}

func (s *BoltStore) Close() error {
	return bolts.release(s.path)
}
