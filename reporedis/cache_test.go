package reporedis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lemmego/repo"
	"github.com/lemmego/repo/repogorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// Test models
type Book struct {
	ID        uint   `gorm:"primaryKey"`
	Title     string `gorm:"size:100;not null"`
	Pages     int
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// CacheTestSuite runs the cache decorator over GORM on SQLite with an
// in-process Redis.
type CacheTestSuite struct {
	suite.Suite
	db     *repogorm.Provider
	redis  *Provider
	mr     *miniredis.Miniredis
	books  *repogorm.Repository[Book]
	cached *CachedRepository[Book]
	logs   *observer.ObservedLogs
	ctx    context.Context
}

func (suite *CacheTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	db, err := repogorm.New(repo.Config{
		Driver:       "sqlite",
		Database:     ":memory:",
		MaxOpenConns: 1,
		Options: map[string]interface{}{
			"gorm": map[string]interface{}{"log_level": "silent"},
		},
	})
	require.NoError(suite.T(), err)
	suite.db = db
	require.NoError(suite.T(), db.DB().AutoMigrate(&Book{}))
}

func (suite *CacheTestSuite) TearDownSuite() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *CacheTestSuite) SetupTest() {
	suite.mr = miniredis.RunT(suite.T())

	p, err := repo.NewProvider(ProviderName, repo.Config{ConnectionURL: "redis://" + suite.mr.Addr()})
	require.NoError(suite.T(), err)
	suite.redis = p.(*Provider)
	suite.T().Cleanup(func() { suite.redis.Close() })

	core, logs := observer.New(zap.DebugLevel)
	suite.logs = logs

	config := repo.DefaultConfig()
	config.Cache.Prefix = "app"
	config.Cache.TTL = time.Minute

	suite.books = repogorm.NewRepository[Book](suite.db)
	suite.cached = NewCachedRepository[Book](suite.books, suite.redis.Store(),
		repo.WithConfig(config), repo.WithLogger(zap.New(core)))

	_, err = suite.books.Raw(suite.ctx, "DELETE FROM books")
	require.NoError(suite.T(), err)
}

func (suite *CacheTestSuite) createBehindCache(title string, pages int) *Book {
	book := &Book{Title: title, Pages: pages}
	require.True(suite.T(), suite.books.Create(suite.ctx, book))
	return book
}

func titles(books []*Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.Title)
	}
	return out
}

// =====================================
// Provider Tests
// =====================================

func (suite *CacheTestSuite) TestProviderInfo() {
	assert.NoError(suite.T(), suite.redis.Health())

	info := suite.redis.ProviderInfo()
	assert.Equal(suite.T(), "Redis", info.Name)
	assert.Equal(suite.T(), repo.DatabaseTypeKV, info.DatabaseType)
	assert.True(suite.T(), repo.HasFeature(suite.redis, repo.FeatureCache))
	assert.Contains(suite.T(), (&Factory{}).SupportedDrivers(), "redis")
}

func (suite *CacheTestSuite) TestProviderFailsWithoutServer() {
	addr := suite.mr.Addr()
	suite.mr.Close()

	_, err := New(repo.Config{ConnectionURL: "redis://" + addr})
	assert.True(suite.T(), repo.IsConnection(err))
}

// =====================================
// Read Caching Tests
// =====================================

func (suite *CacheTestSuite) TestReadsAreServedFromCacheUntilAWrite() {
	require.True(suite.T(), suite.cached.Create(suite.ctx, &Book{Title: "Dune", Pages: 412}))

	books, err := suite.cached.All(suite.ctx, repo.OrderBy("title", repo.OrderAsc))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Dune"}, titles(books))

	suite.createBehindCache("Emma", 474)

	books, err = suite.cached.All(suite.ctx, repo.OrderBy("title", repo.OrderAsc))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Dune"}, titles(books), "served from cache")

	require.True(suite.T(), suite.cached.Create(suite.ctx, &Book{Title: "Ulysses", Pages: 730}))

	books, err = suite.cached.All(suite.ctx, repo.OrderBy("title", repo.OrderAsc))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Dune", "Emma", "Ulysses"}, titles(books))
}

func (suite *CacheTestSuite) TestDifferentOptionsUseDifferentEntries() {
	suite.createBehindCache("Dune", 412)
	suite.createBehindCache("Emma", 474)

	long, err := suite.cached.FindWhere(suite.ctx, []repo.Condition{repo.Compare("pages", repo.OpGreaterThan, 450)})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Emma"}, titles(long))

	short, err := suite.cached.FindWhere(suite.ctx, []repo.Condition{repo.Compare("pages", repo.OpLessThan, 450)})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Dune"}, titles(short))

	byTitle, err := suite.cached.FindByField(suite.ctx, "title", "Emma")
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), byTitle, 1)

	in, err := suite.cached.FindWhereIn(suite.ctx, "title", []string{"Dune", "Emma"})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), in, 2)

	between, err := suite.cached.FindWhereBetween(suite.ctx, "pages", 400, 420)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []string{"Dune"}, titles(between))
}

func (suite *CacheTestSuite) TestSubqueryArgumentsUseDifferentEntries() {
	suite.createBehindCache("Dune", 412)

	longerThan := func(pages int) repo.QueryOption {
		return repo.Where(repo.Exists(func(q *repo.SubQuery) {
			q.From("books").Where(repo.Raw("pages > ?", pages))
		}))
	}

	n, err := suite.cached.Count(suite.ctx, longerThan(100))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)

	n, err = suite.cached.Count(suite.ctx, longerThan(1000))
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), n)
}

func (suite *CacheTestSuite) TestFindCachesHitsOnly() {
	_, ok := suite.cached.Find(suite.ctx, 42)
	assert.False(suite.T(), ok)

	require.True(suite.T(), suite.books.Create(suite.ctx, &Book{ID: 42, Title: "Dune", Pages: 412}))

	book, ok := suite.cached.Find(suite.ctx, 42)
	require.True(suite.T(), ok, "a miss is not cached")
	assert.Equal(suite.T(), "Dune", book.Title)

	require.True(suite.T(), suite.books.Update(suite.ctx, 42, map[string]interface{}{"title": "Dune Messiah"}))
	book, ok = suite.cached.Find(suite.ctx, 42)
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), "Dune", book.Title, "served from cache")

	require.NoError(suite.T(), suite.cached.Flush(suite.ctx))
	book, ok = suite.cached.Find(suite.ctx, 42)
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), "Dune Messiah", book.Title)
}

func (suite *CacheTestSuite) TestCountExistsAndFirst() {
	suite.createBehindCache("Dune", 412)

	n, err := suite.cached.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)

	exists, err := suite.cached.Exists(suite.ctx, repo.WhereField("title", "Emma"))
	require.NoError(suite.T(), err)
	assert.False(suite.T(), exists)

	suite.createBehindCache("Emma", 474)

	n, err = suite.cached.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n, "served from cache")

	_, err = suite.cached.First(suite.ctx, repo.WhereField("title", "Moby Dick"))
	assert.True(suite.T(), repo.IsNotFound(err))

	ok, err := suite.cached.DeleteWhere(suite.ctx, repo.Eq("title", "Dune"))
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)

	n, err = suite.cached.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)

	n, err = suite.cached.Count(suite.ctx, repo.WithTrashed())
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(2), n)
}

func (suite *CacheTestSuite) TestPaginateKeepsMethod() {
	for _, title := range []string{"A", "B", "C"} {
		suite.createBehindCache(title, 100)
	}

	for i := 0; i < 2; i++ {
		page, err := suite.cached.Paginate(suite.ctx, repo.PageRequest{Page: 1, Limit: 2, Path: "/books"})
		require.NoError(suite.T(), err)
		assert.Equal(suite.T(), repo.MethodPaginate, page.Method)
		require.NotNil(suite.T(), page.Total)
		assert.Equal(suite.T(), int64(3), *page.Total)
		assert.Len(suite.T(), page.Items, 2)
		assert.True(suite.T(), page.HasMore)
	}

	page, err := suite.cached.SimplePaginate(suite.ctx, repo.PageRequest{Page: 2, Limit: 2})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), repo.MethodSimplePaginate, page.Method)
	assert.Nil(suite.T(), page.Total)
	assert.Len(suite.T(), page.Items, 1)
}

func (suite *CacheTestSuite) TestScopesAndPluckBypassCache() {
	suite.createBehindCache("Dune", 412)

	scope := repo.Scope(repogorm.ScopeFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where("pages > ?", 100)
	}))
	books, err := suite.cached.All(suite.ctx, scope)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), books, 1)

	suite.createBehindCache("Emma", 474)

	books, err = suite.cached.All(suite.ctx, scope)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), books, 2)

	pages, err := suite.cached.Pluck(suite.ctx, "pages", repo.OrderBy("pages", repo.OrderAsc))
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), pages, 2)
}

func (suite *CacheTestSuite) TestInvalidArgumentsReachTheRepository() {
	_, err := suite.cached.FindWhereIn(suite.ctx, "title", "Dune")
	assert.True(suite.T(), repo.IsInvalidArgument(err))

	_, err = suite.cached.All(suite.ctx, repo.Where(repo.Eq("bad column", 1)))
	assert.True(suite.T(), repo.IsInvalidArgument(err))

	assert.Empty(suite.T(), suite.mr.Keys())
}

// =====================================
// Write Invalidation Tests
// =====================================

func (suite *CacheTestSuite) TestWritesBumpTheVersion() {
	book := suite.createBehindCache("Dune", 412)

	_, err := suite.cached.All(suite.ctx)
	require.NoError(suite.T(), err)

	keys := suite.mr.Keys()
	require.Len(suite.T(), keys, 1)
	assert.True(suite.T(), strings.HasPrefix(keys[0], "app:book:v0:all:"), keys[0])
	assert.Equal(suite.T(), time.Minute, suite.mr.TTL(keys[0]))

	assert.True(suite.T(), suite.cached.Update(suite.ctx, book.ID, map[string]interface{}{"pages": 500}))
	assert.True(suite.T(), suite.cached.Delete(suite.ctx, book.ID))
	assert.True(suite.T(), suite.cached.Restore(suite.ctx, book.ID))

	_, err = suite.cached.FirstOrCreate(suite.ctx, map[string]interface{}{"title": "Emma"})
	require.NoError(suite.T(), err)

	version, err := suite.mr.Get("app:book:version")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "4", version)

	assert.False(suite.T(), suite.cached.Delete(suite.ctx, 1<<30))
	version, _ = suite.mr.Get("app:book:version")
	assert.Equal(suite.T(), "4", version, "failed writes keep the cache")

	_, err = suite.cached.All(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Contains(suite.T(), suite.mr.Keys(), "app:book:version")
}

func (suite *CacheTestSuite) TestRawInvalidates() {
	suite.createBehindCache("Dune", 412)

	n, err := suite.cached.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)

	_, err = suite.cached.Raw(suite.ctx, "DELETE FROM books")
	require.NoError(suite.T(), err)

	n, err = suite.cached.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), n)
}

func (suite *CacheTestSuite) TestStoreOutageFallsBackToRepository() {
	suite.createBehindCache("Dune", 412)
	suite.mr.Close()

	books, err := suite.cached.All(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), books, 1)

	assert.True(suite.T(), suite.cached.Create(suite.ctx, &Book{Title: "Emma"}))
	assert.NotZero(suite.T(), suite.logs.FilterMessage("cache version lookup failed").Len())
	assert.NotZero(suite.T(), suite.logs.FilterMessage("cache invalidation failed").Len())
}

func (suite *CacheTestSuite) TestUndecodableEntryIsReloaded() {
	suite.createBehindCache("Dune", 412)

	_, err := suite.cached.All(suite.ctx)
	require.NoError(suite.T(), err)
	keys := suite.mr.Keys()
	require.Len(suite.T(), keys, 1)
	require.NoError(suite.T(), suite.mr.Set(keys[0], "{not json"))

	books, err := suite.cached.All(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), books, 1)
	assert.Equal(suite.T(), 1, suite.logs.FilterMessage("discarding undecodable cache entry").Len())
}

func (suite *CacheTestSuite) TestEntityInfoIsDelegated() {
	info, err := suite.cached.EntityInfo()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "books", info.TableName)
	assert.Same(suite.T(), suite.books, suite.cached.Unwrap())
}

func (suite *CacheTestSuite) TestCacheBoundDecoratesTheRegistry() {
	registry := repo.NewRegistry()
	require.NoError(suite.T(), registry.Connect(repo.DefaultConnection, suite.db))
	require.NoError(suite.T(), repo.Bind[Book](registry, repo.DefaultConnection, suite.books))

	config := repo.DefaultConfig()
	config.Cache.Prefix = "bound"
	require.NoError(suite.T(), CacheBound[Book](registry, repo.DefaultConnection, suite.redis.Store(), repo.WithConfig(config)))

	books := repo.MustResolve[Book](registry, repo.DefaultConnection)
	cached, ok := books.(*CachedRelationRepository[Book])
	require.True(suite.T(), ok, "relation support is kept")
	assert.Same(suite.T(), suite.books, cached.Unwrap())

	suite.createBehindCache("Dune", 412)
	n, err := books.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)

	suite.createBehindCache("Emma", 474)
	n, err = books.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n, "served from cache")
	assert.NotEmpty(suite.T(), suite.mr.Keys())

	err = CacheBound[Book](repo.NewRegistry(), repo.DefaultConnection, suite.redis.Store())
	assert.True(suite.T(), repo.IsNotFound(err))
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheTestSuite))
}
