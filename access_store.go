package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// AccessStore keeps the live Access of each session in memory until the
// session expires.
type AccessStore struct {
	entries         sync.Map
	cleanupInterval time.Duration
	done            chan struct{}
	closeOnce       sync.Once
}

type accessEntry struct {
	access    *Access
	expiresAt time.Time
}

func NewAccessStore(cleanupInterval time.Duration) *AccessStore {
	s := &AccessStore{
		cleanupInterval: cleanupInterval,
		done:            make(chan struct{}),
	}
	go s.periodicCleanup()
	return s
}

func (s *AccessStore) periodicCleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.removeExpired(time.Now())
		}
	}
}

func (s *AccessStore) removeExpired(now time.Time) {
	s.entries.Range(func(key, value interface{}) bool {
		if entry, ok := value.(accessEntry); ok && now.After(entry.expiresAt) {
			s.entries.Delete(key)
		}
		return true
	})
}

func (s *AccessStore) Store(sessionID uuid.UUID, access *Access, expiresAt time.Time) {
	s.entries.Store(sessionID, accessEntry{access: access, expiresAt: expiresAt})
}

// LoadOrStore returns the session's live Access, installing access only when
// there is none or the stored one has expired. Concurrent callers all get
// the same Access.
func (s *AccessStore) LoadOrStore(sessionID uuid.UUID, access *Access, expiresAt time.Time) *Access {
	fresh := accessEntry{access: access, expiresAt: expiresAt}
	for {
		value, loaded := s.entries.LoadOrStore(sessionID, fresh)
		if !loaded {
			return access
		}
		entry := value.(accessEntry)
		if !time.Now().After(entry.expiresAt) {
			return entry.access
		}
		if s.entries.CompareAndSwap(sessionID, value, fresh) {
			return access
		}
	}
}

// Load returns the session's Access unless it is missing or expired.
func (s *AccessStore) Load(sessionID uuid.UUID) (*Access, bool) {
	value, ok := s.entries.Load(sessionID)
	if !ok {
		return nil, false
	}
	entry := value.(accessEntry)
	if time.Now().After(entry.expiresAt) {
		s.entries.Delete(sessionID)
		return nil, false
	}
	return entry.access, true
}

func (s *AccessStore) Delete(sessionID uuid.UUID) {
	s.entries.Delete(sessionID)
}

// Close stops the cleanup goroutine.
func (s *AccessStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
