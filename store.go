package main

import (
	"sync"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/atomic"
)

// StoreMode selects the presence semantics of an insert.
type StoreMode int

const (
	ModeSet StoreMode = iota
	ModeAdd
	ModeReplace
)

// StoreResult is the outcome of a Store mutation.
type StoreResult int

const (
	ResultStored StoreResult = iota
	ResultNotStored
	ResultDeleted
	ResultEnd
)

// entry is one bucket-chain node: a live or not-yet-reaped cache record.
type entry struct {
	key       string
	value     []byte
	flags     uint32
	byteCount int
	expiry    time.Time // zero value means "never expires"
	next      *entry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiry.IsZero() && !e.expiry.After(now)
}

// Store is a keyed cache with time-based expiry and load-factor-driven
// growth. All public operations present an atomic view: every method except
// Resizes (which reads an atomic counter) acquires mu for its entire body, so
// readers and writers never interleave.
type Store struct {
	mu       sync.Mutex
	buckets  []*entry
	size     int
	capacity int
	resizes  atomic.Uint64
}

// NewStore creates a Store with the given initial bucket count.
func NewStore(initialCapacity int) *Store {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Store{
		buckets:  make([]*entry, initialCapacity),
		capacity: initialCapacity,
	}
}

func hashKey(key string, capacity int) int {
	return int(xxh3.HashString(key) % uint64(capacity))
}

// Insert stores key/value per mode and ttl semantics. ttl < 0 means "do not
// store"; ttl == 0 means "no expiry"; ttl > 0 means "expire ttl seconds from
// now". It returns ResultStored or ResultNotStored.
func (s *Store) Insert(key string, value []byte, flags uint32, byteCount int, ttl int64, mode StoreMode) StoreResult {
	if ttl < 0 {
		return ResultNotStored
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(time.Duration(ttl) * time.Second)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	idx := hashKey(key, s.capacity)

	var tail *entry
	var stale *entry // same-key node seen but expired; reused in place rather than duplicated
	for node := s.buckets[idx]; node != nil; node = node.next {
		if node.key == key {
			if node.expired(now) {
				stale = node
			} else {
				if mode == ModeAdd {
					return ResultNotStored
				}
				node.value = value
				node.flags = flags
				node.byteCount = byteCount
				node.expiry = expiry
				return ResultStored
			}
		}
		tail = node
	}

	if mode == ModeReplace {
		return ResultNotStored
	}

	if stale != nil {
		stale.value = value
		stale.flags = flags
		stale.byteCount = byteCount
		stale.expiry = expiry
		return ResultStored
	}

	newNode := &entry{key: key, value: value, flags: flags, byteCount: byteCount, expiry: expiry}
	if tail == nil {
		s.buckets[idx] = newNode
	} else {
		tail.next = newNode
	}
	s.size++
	s.maybeResizeLocked()
	return ResultStored
}

// Get returns the live value, flags, and byte count stored under key, or
// ok=false if absent (including lazily-observed expiry).
func (s *Store) Get(key string) (value []byte, flags uint32, byteCount int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	idx := hashKey(key, s.capacity)
	for node := s.buckets[idx]; node != nil; node = node.next {
		if node.key == key && !node.expired(now) {
			return node.value, node.flags, node.byteCount, true
		}
	}
	return nil, 0, 0, false
}

// Delete unlinks the live entry for key, if any, and reports whether one was
// removed.
func (s *Store) Delete(key string) StoreResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	idx := hashKey(key, s.capacity)
	var prev *entry
	for node := s.buckets[idx]; node != nil; node = node.next {
		if node.key == key && !node.expired(now) {
			if prev == nil {
				s.buckets[idx] = node.next
			} else {
				prev.next = node.next
			}
			s.size--
			return ResultDeleted
		}
		prev = node
	}
	return ResultEnd
}

// Size returns the current number of live-or-not-yet-reaped entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Capacity returns the current bucket count.
func (s *Store) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// Resizes returns the number of doubling passes performed so far.
func (s *Store) Resizes() uint64 {
	return s.resizes.Load()
}

// maybeResizeLocked doubles capacity and rehashes every entry once the load
// factor reaches 0.5. Callers must hold mu.
func (s *Store) maybeResizeLocked() {
	if float64(s.size)/float64(s.capacity) < 0.5 {
		return
	}

	newCapacity := s.capacity * 2
	newBuckets := make([]*entry, newCapacity)
	now := time.Now()
	newSize := 0

	for _, head := range s.buckets {
		node := head
		for node != nil {
			next := node.next // capture before relinking or dropping
			if node.expired(now) {
				node = next
				continue
			}

			idx := hashKey(node.key, newCapacity)
			node.next = nil
			if newBuckets[idx] == nil {
				newBuckets[idx] = node
			} else {
				tail := newBuckets[idx]
				for tail.next != nil {
					tail = tail.next
				}
				tail.next = node
			}
			newSize++
			node = next
		}
	}

	s.buckets = newBuckets
	s.capacity = newCapacity
	s.size = newSize
	s.resizes.Add(1)
}

// ReapExpired scans every bucket and unlinks entries observed expired,
// without resizing. It is a periodic hygiene pass: correctness never
// depends on it running, since every reader already treats an expired
// entry as absent.
func (s *Store) ReapExpired() (reaped int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i, head := range s.buckets {
		var prev *entry
		node := head
		for node != nil {
			next := node.next
			if node.expired(now) {
				if prev == nil {
					s.buckets[i] = next
				} else {
					prev.next = next
				}
				s.size--
				reaped++
			} else {
				prev = node
			}
			node = next
		}
	}
	return reaped
}
