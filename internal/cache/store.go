package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     any
	stale     bool
	fetchedAt time.Time
}

// Store is a goroutine-safe map of cached reads. Values are never evicted implicitly;
// a stale entry is kept only so callers can Peek at it while a refetch is pending.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	// epoch increases on every Invalidate. A fetch that began in an older epoch may
	// have raced a mutation, so its result is stored stale.
	epoch uint64
	now   func() time.Time

	flights singleflight.Group
}

// New returns an empty Store.
func New() *Store {
	return &Store{entries: make(map[Key]*entry), now: time.Now}
}

// Peek returns the cached value for k without fetching. stale reports whether a
// mutation has invalidated it since it was fetched.
func (s *Store) Peek(k Key) (value any, stale bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		return nil, false, false
	}
	return e.value, e.stale, true
}

// FetchedAt reports when the value under k was stored.
func (s *Store) FetchedAt(k Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		return time.Time{}, false
	}
	return e.fetchedAt, true
}

// Set stores v under k as fresh. It is used to seed entries from authoritative
// mutation responses.
func (s *Store) Set(k Key, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[k] = &entry{value: v, fetchedAt: s.now()}
}

// Invalidate marks every entry affected by m stale and returns how many were marked.
func (s *Store) Invalidate(m Mutation) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	n := 0
	for k, e := range s.entries {
		if k.affectedBy(m) && !e.stale {
			e.stale = true
			n++
		}
	}
	return n
}

// Forget drops k entirely.
func (s *Store) Forget(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, k)
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.entries = make(map[Key]*entry)
}

// Len returns the number of entries, stale ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup returns a fresh value for k, or the current epoch when there is none.
func (s *Store) lookup(k Key) (any, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[k]; ok && !e.stale {
		return e.value, s.epoch, true
	}
	return nil, s.epoch, false
}

// storeFetched records a fetch that began in epoch. A result that raced an invalidation
// is kept stale and never replaces a fresh entry seeded in the meantime.
func (s *Store) storeFetched(k Key, v any, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := epoch != s.epoch
	if cur, ok := s.entries[k]; ok && stale && !cur.stale {
		return
	}
	s.entries[k] = &entry{value: v, stale: stale, fetchedAt: s.now()}
}

// Load returns the fresh cached value for k or calls fetch and caches its result.
// Concurrent loads of the same key in the same epoch share one fetch. Errors are
// returned to every waiter and never cached.
func Load[T any](ctx context.Context, s *Store, k Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	cached, epoch, ok := s.lookup(k)
	if typed, match := cached.(T); ok && match {
		return typed, nil
	}

	flight := k.String() + "@" + strconv.FormatUint(epoch, 10)
	ch := s.flights.DoChan(flight, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		s.storeFetched(k, v, epoch)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			// The shared fetch ran on another caller's context. If that caller gave up
			// while this one is still live, fetch again on our own context.
			if isContextErr(res.Err) && ctx.Err() == nil && res.Shared {
				v, err := fetch(ctx)
				if err != nil {
					return zero, err
				}
				s.storeFetched(k, v, epoch)
				return v, nil
			}
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("cache: %s holds %T", k, res.Val)
		}
		return typed, nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
