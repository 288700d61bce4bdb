package main

import (
	"sort"
	"sync"

	"github.com/kdudkov/tileview/pkg/session"
)

func NewSessions() *Sessions {
	return &Sessions{
		data: sync.Map{},
	}
}

// Sessions holds one session per source key.
type Sessions struct {
	data sync.Map
}

func (h *Sessions) Get(key string) (*session.Session, bool) {
	if v, ok := h.data.Load(key); ok {
		if s, ok1 := v.(*session.Session); ok1 {
			return s, true
		}
	}

	return nil, false
}

func (h *Sessions) Add(s *session.Session) {
	if s == nil {
		return
	}

	h.data.Store(s.Source().Key, s)
}

func (h *Sessions) All(f func(s *session.Session) bool) {
	h.data.Range(func(_, value any) bool {
		if s, ok := value.(*session.Session); ok {
			return f(s)
		}

		return true
	})
}

// Sorted returns the sessions ordered by source key.
func (h *Sessions) Sorted() []*session.Session {
	var res []*session.Session

	h.All(func(s *session.Session) bool {
		res = append(res, s)
		return true
	})

	sort.Slice(res, func(i, j int) bool {
		return res[i].Source().Key < res[j].Source().Key
	})

	return res
}
