package store

import (
	"errors"

	"github.com/kdudkov/tileview/pkg/model"
)

var _ Store = &Chain{}

// Chain reads from its stores in order and writes to the first one.
type Chain struct {
	stores []Store
}

func NewChain(stores ...Store) *Chain {
	if len(stores) == 0 {
		panic("no stores")
	}

	return &Chain{stores: stores}
}

// First is the writable store.
func (c *Chain) First() Store {
	return c.stores[0]
}

func (c *Chain) Has(a model.Address) bool {
	for _, s := range c.stores {
		if s.Has(a) {
			return true
		}
	}

	return false
}

func (c *Chain) Load(a model.Address) ([]byte, error) {
	var firstErr error

	for _, s := range c.stores {
		data, err := s.Load(a)

		if err == nil {
			return data, nil
		}

		if firstErr == nil || errors.Is(firstErr, ErrNotFound) {
			firstErr = err
		}
	}

	return nil, firstErr
}

func (c *Chain) Save(a model.Address, data []byte) error {
	return c.stores[0].Save(a, data)
}

func (c *Chain) Close() error {
	var errs []error

	for _, s := range c.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
