package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

// storeContract runs the behaviour every Store backend must share.
func storeContract(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "cache:missing")
	require.NoError(t, err)
	require.False(t, ok)

	keys := []string{
		Key("students", Params{"skip": 0, "limit": 100}),
		Key("students", Params{"skip": 100, "limit": 100}),
		Key("student", Params{"student_id": 1}),
		Key("student", Params{"student_id": 12}),
		Key("unique_courses", nil),
	}
	for _, k := range keys {
		require.NoError(t, s.Set(ctx, k, []byte(`"`+k+`"`), time.Minute))
	}

	got, ok, err := s.Get(ctx, keys[0])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `"`+keys[0]+`"`, string(got))

	n, err := s.InvalidatePrefix(ctx, "students")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.InvalidatePrefix(ctx, Namespace("student", Params{"student_id": 1}))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, _ = s.Get(ctx, Key("student", Params{"student_id": 12}))
	require.True(t, ok, "student_id=12 must survive student_id=1 invalidation")

	n, err = s.InvalidatePrefix(ctx, "unique_courses")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.InvalidatePrefix(ctx, "faculties")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore_Contract(t *testing.T) {
	s, _ := newRedisStore(t)
	storeContract(t, s)
}

func TestMemoryStore_TTL(t *testing.T) {
	base := time.Now()
	now = func() time.Time { return base }
	t.Cleanup(func() { now = time.Now })

	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "cache:students", []byte("1"), 300*time.Second))

	base = base.Add(299 * time.Second)
	_, ok, _ := s.Get(ctx, "cache:students")
	require.True(t, ok)

	base = base.Add(2 * time.Second)
	_, ok, _ = s.Get(ctx, "cache:students")
	require.False(t, ok)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	val := []byte("abc")
	require.NoError(t, s.Set(ctx, "cache:x", val, 0))
	val[0] = 'z'

	got, _, _ := s.Get(ctx, "cache:x")
	require.Equal(t, "abc", string(got))
	got[1] = 'z'
	again, _, _ := s.Get(ctx, "cache:x")
	require.Equal(t, "abc", string(again))
}

func TestMemoryStore_Janitor(t *testing.T) {
	base := time.Now()
	var mu sync.Mutex
	now = func() time.Time { mu.Lock(); defer mu.Unlock(); return base }
	t.Cleanup(func() { now = time.Now })

	s := NewMemoryStore()
	require.NoError(t, s.Set(context.Background(), "cache:a", []byte("1"), time.Second))
	mu.Lock()
	base = base.Add(time.Hour)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s.items.mu.RLock()
		defer s.items.mu.RUnlock()
		return len(s.items.items) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "cache:students", []byte("1"), 300*time.Second))

	mr.FastForward(301 * time.Second)
	_, ok, err := s.Get(ctx, "cache:students")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_InvalidateManyKeys(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	for i := 0; i < 1200; i++ {
		require.NoError(t, s.Set(ctx, Key("students", Params{"skip": i, "limit": 1}), []byte("[]"), time.Minute))
	}
	require.NoError(t, s.Set(ctx, Key("faculty_students", Params{"faculty": "Math"}), []byte("[]"), time.Minute))

	n, err := s.InvalidatePrefix(ctx, "students")
	require.NoError(t, err)
	require.Equal(t, 1200, n)
	require.Len(t, mr.Keys(), 1)
}

func TestRedisStore_GetError(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()
	_, _, err := s.Get(context.Background(), "cache:students")
	require.Error(t, err)
}
