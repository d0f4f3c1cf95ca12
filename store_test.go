package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreInsertModes(t *testing.T) {
	t.Run("set always stores", func(t *testing.T) {
		s := NewStore(4)
		require.Equal(t, ResultStored, s.Insert("k", []byte("a"), 0, 1, 0, ModeSet))
		require.Equal(t, ResultStored, s.Insert("k", []byte("b"), 0, 1, 0, ModeSet))
		v, _, _, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, []byte("b"), v)
	})

	t.Run("add only when absent", func(t *testing.T) {
		s := NewStore(4)
		require.Equal(t, ResultStored, s.Insert("k", []byte("a"), 0, 1, 0, ModeAdd))
		require.Equal(t, ResultNotStored, s.Insert("k", []byte("b"), 0, 1, 0, ModeAdd))
		v, _, _, _ := s.Get("k")
		assert.Equal(t, []byte("a"), v)
	})

	t.Run("replace only when present", func(t *testing.T) {
		s := NewStore(4)
		require.Equal(t, ResultNotStored, s.Insert("k", []byte("a"), 0, 1, 0, ModeReplace))
		require.Equal(t, ResultStored, s.Insert("k", []byte("a"), 0, 1, 0, ModeSet))
		require.Equal(t, ResultStored, s.Insert("k", []byte("b"), 0, 1, 0, ModeReplace))
	})
}

func TestStoreTTLBoundaries(t *testing.T) {
	s := NewStore(4)

	require.Equal(t, ResultNotStored, s.Insert("neg", []byte("x"), 0, 1, -1, ModeSet))
	_, _, _, ok := s.Get("neg")
	assert.False(t, ok)

	require.Equal(t, ResultStored, s.Insert("zero", []byte("x"), 0, 1, 0, ModeSet))
	_, _, _, ok = s.Get("zero")
	assert.True(t, ok)

	require.Equal(t, ResultStored, s.Insert("one", []byte("x"), 0, 1, 1, ModeSet))
	_, _, _, ok = s.Get("one")
	assert.True(t, ok)
}

func TestStoreExpiryIsLazy(t *testing.T) {
	s := NewStore(4)
	require.Equal(t, ResultStored, s.Insert("k", []byte("v"), 0, 1, 1, ModeSet))

	// Force the node's expiry into the past without waiting a real second.
	node := s.buckets[hashKey("k", s.capacity)]
	require.NotNil(t, node)
	node.expiry = time.Now().Add(-time.Millisecond)

	_, _, _, ok := s.Get("k")
	assert.False(t, ok, "an entry past its expiry must read as missing")

	// ADD on an expired-but-not-reaped entry stores successfully.
	require.Equal(t, ResultStored, s.Insert("k", []byte("new"), 0, 3, 0, ModeAdd))
	v, _, _, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), v)
}

func TestStoreDelete(t *testing.T) {
	s := NewStore(4)
	assert.Equal(t, ResultEnd, s.Delete("missing"))

	require.Equal(t, ResultStored, s.Insert("k", []byte("v"), 0, 1, 0, ModeSet))
	assert.Equal(t, ResultDeleted, s.Delete("k"))
	assert.Equal(t, ResultEnd, s.Delete("k"))
}

func TestStoreLoadFactorAndResize(t *testing.T) {
	s := NewStore(4)
	for i := 0; i < 2; i++ {
		key := string(rune('a' + i))
		require.Equal(t, ResultStored, s.Insert(key, []byte(key), 0, 1, 0, ModeSet))
		assert.LessOrEqual(t, s.Size(), s.Capacity()/2, "load factor bound must hold after every successful insert")
	}
	assert.Greater(t, s.Capacity(), 4, "capacity should have doubled at least once")
}

func TestStoreResizePreservesLiveEntries(t *testing.T) {
	s := NewStore(2)
	keys := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	for i, k := range keys {
		require.Equal(t, ResultStored, s.Insert(k, []byte{byte(i)}, uint32(i), 1, 0, ModeSet))
	}
	for i, k := range keys {
		v, flags, byteCount, ok := s.Get(k)
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
		assert.Equal(t, uint32(i), flags)
		assert.Equal(t, 1, byteCount)
	}
}

func TestStoreResizeDropsExpiredEntries(t *testing.T) {
	s := NewStore(2)
	require.Equal(t, ResultStored, s.Insert("live", []byte("v"), 0, 1, 0, ModeSet))

	idx := hashKey("expired", s.capacity)
	s.mu.Lock()
	s.buckets[idx] = &entry{key: "expired", value: []byte("v"), expiry: time.Now().Add(-time.Second), next: s.buckets[idx]}
	s.size++
	s.mu.Unlock()

	s.mu.Lock()
	s.maybeResizeLocked()
	s.mu.Unlock()

	_, _, _, ok := s.Get("live")
	assert.True(t, ok)
	_, _, _, ok = s.Get("expired")
	assert.False(t, ok)
}

func TestReapExpired(t *testing.T) {
	s := NewStore(4)
	require.Equal(t, ResultStored, s.Insert("live", []byte("v"), 0, 1, 0, ModeSet))
	idx := hashKey("dead", s.capacity)
	s.mu.Lock()
	s.buckets[idx] = &entry{key: "dead", value: []byte("v"), expiry: time.Now().Add(-time.Second), next: s.buckets[idx]}
	s.size++
	before := s.size
	s.mu.Unlock()

	n := s.ReapExpired()
	assert.Equal(t, 1, n)
	assert.Equal(t, before-1, s.Size())
	_, _, _, ok := s.Get("live")
	assert.True(t, ok)
}
