package reporedis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/lemmego/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client), mr
}

func TestStoreGetSet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.True(t, repo.IsNotFound(err))

	require.NoError(t, store.Set(ctx, "greeting", []byte("hello"), 0))
	data, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestStoreSetExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "session", []byte("token"), time.Minute))
	assert.Equal(t, time.Minute, mr.TTL("session"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "session")
	assert.True(t, repo.IsNotFound(err))
}

func TestStoreIncrAndDelete(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	n, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, mr.Set("word", "abc"))
	_, err = store.Incr(ctx, "word")
	assert.True(t, repo.IsValidation(err))

	deleted, err := store.Delete(ctx, "counter", "word", "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	deleted, err = store.Delete(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(repo.Config{
		Host:         "cache.internal",
		Port:         6380,
		Database:     "3",
		Password:     "secret",
		MaxOpenConns: 20,
		MaxIdleConns: 4,
		Options: map[string]interface{}{
			"redis": map[string]interface{}{
				"dial_timeout": 2 * time.Second,
				"read_timeout": "750ms",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, 4, opts.MinIdleConns)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 750*time.Millisecond, opts.ReadTimeout)

	opts, err = clientOptions(repo.Config{})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	opts, err = clientOptions(repo.Config{ConnectionURL: "redis://:pw@example.com:6390/2"})
	require.NoError(t, err)
	assert.Equal(t, "example.com:6390", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "pw", opts.Password)

	_, err = clientOptions(repo.Config{Database: "users"})
	assert.True(t, repo.IsInvalidArgument(err))
}

func TestConvertRedisError(t *testing.T) {
	assert.NoError(t, convertRedisError(nil))
	assert.True(t, repo.IsNotFound(convertRedisError(redis.Nil)))
	assert.True(t, repo.IsErrorType(convertRedisError(context.DeadlineExceeded), repo.ErrorTypeTimeout))
	assert.True(t, repo.IsValidation(convertRedisError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"))))
	assert.True(t, repo.IsConnection(convertRedisError(errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"))))
	assert.True(t, repo.IsErrorType(convertRedisError(errors.New("ERR unknown command")), repo.ErrorTypeDatabase))

	original := repo.NewError(repo.ErrorTypeDuplicate, "dup")
	assert.Equal(t, original, convertRedisError(original))
}

func TestFingerprint(t *testing.T) {
	plain, ok := fingerprint([]repo.QueryOption{repo.Where(repo.Eq("title", "Dune")), repo.Limit(5)})
	require.True(t, ok)

	other, ok := fingerprint([]repo.QueryOption{repo.Where(repo.Eq("title", "Emma")), repo.Limit(5)})
	require.True(t, ok)
	assert.NotEqual(t, plain, other)

	trashed, ok := fingerprint([]repo.QueryOption{repo.Where(repo.Eq("title", "Dune")), repo.Limit(5), repo.WithTrashed()})
	require.True(t, ok)
	assert.NotEqual(t, plain, trashed)

	rawA, _ := fingerprint([]repo.QueryOption{repo.Where(repo.Raw("pages > ?", 100))})
	rawB, _ := fingerprint([]repo.QueryOption{repo.Where(repo.Raw("pages > ?", 200))})
	assert.NotEqual(t, rawA, rawB)

	nested := func(pages int) repo.QueryOption {
		return repo.Where(repo.Exists(func(q *repo.SubQuery) {
			q.From("books").Where(repo.Raw("pages > ?", pages))
		}))
	}
	nestedA, ok := fingerprint([]repo.QueryOption{nested(100)})
	require.True(t, ok)
	nestedB, _ := fingerprint([]repo.QueryOption{nested(1000)})
	assert.NotEqual(t, nestedA, nestedB)

	morph := func(status string) repo.QueryOption {
		return repo.Where(repo.HasMorph("commentable", []string{"posts"}, func(q *repo.SubQuery) {
			q.Where(repo.Eq("status", status))
		}))
	}
	morphA, ok := fingerprint([]repo.QueryOption{morph("draft")})
	require.True(t, ok)
	morphB, _ := fingerprint([]repo.QueryOption{morph("published")})
	assert.NotEqual(t, morphA, morphB)

	preload := func(pages int) repo.QueryOption {
		return repo.WithConstraint("chapters", func(q *repo.SubQuery) {
			q.Where(repo.Raw("pages > ?", pages))
		})
	}
	preloadA, ok := fingerprint([]repo.QueryOption{preload(10)})
	require.True(t, ok)
	preloadB, _ := fingerprint([]repo.QueryOption{preload(20)})
	assert.NotEqual(t, preloadA, preloadB)

	_, ok = fingerprint([]repo.QueryOption{repo.Scope(func(v interface{}) interface{} { return v })})
	assert.False(t, ok)

	_, ok = fingerprint([]repo.QueryOption{repo.Lock(repo.LockForUpdate)})
	assert.False(t, ok)

	_, ok = fingerprint([]repo.QueryOption{repo.Where(repo.In("id", 5))})
	assert.False(t, ok)
}
