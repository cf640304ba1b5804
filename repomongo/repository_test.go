package repomongo

import (
	"context"
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/lemmego/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Test models with MongoDB tags
type TestUser struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Name      string             `bson:"name" json:"name"`
	Age       int                `bson:"age" json:"age"`
	Status    string             `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
	DeletedAt *time.Time         `bson:"deleted_at" json:"deleted_at,omitempty"`
}

func (TestUser) CollectionName() string { return "test_users" }

// Validate rejects users without an email
func (u *TestUser) Validate(ctx context.Context) error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

type TestProduct struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Price float64            `bson:"price" json:"price"`
	Stock int                `bson:"stock" json:"stock"`
}

func (TestProduct) CollectionName() string { return "test_products" }

// Test suite
type MongoRepositoryTestSuite struct {
	suite.Suite
	provider *Provider
	users    *Repository[TestUser]
	products *Repository[TestProduct]
	events   []repo.Event
	ctx      context.Context
}

func (suite *MongoRepositoryTestSuite) SetupSuite() {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		suite.T().Skip("MONGO_URI not set")
	}

	config := repo.DefaultConfig()
	config.Driver = "mongodb"
	config.ConnectionURL = uri
	config.Database = "repo_test"
	config.Options = map[string]interface{}{
		ProviderName: map[string]interface{}{
			"max_pool_size": 10,
			"transactions":  os.Getenv("MONGO_TRANSACTIONS") == "true",
		},
	}

	provider, err := repo.NewProvider(ProviderName, config, repo.WithLogger(zap.NewNop()))
	if err != nil {
		suite.T().Skip("MongoDB not available for testing:", err)
	}

	suite.ctx = context.Background()
	suite.provider = provider.(*Provider)
	hook := repo.EventHookFunc(func(_ context.Context, e repo.Event) {
		suite.events = append(suite.events, e)
	})
	suite.users = NewRepository[TestUser](suite.provider, repo.WithEventHook(hook))
	suite.products = NewRepository[TestProduct](suite.provider)
}

func (suite *MongoRepositoryTestSuite) TearDownSuite() {
	if suite.provider != nil {
		suite.cleanupTestData()
		suite.provider.Close()
	}
}

func (suite *MongoRepositoryTestSuite) SetupTest() {
	suite.cleanupTestData()
	suite.events = nil
}

func (suite *MongoRepositoryTestSuite) cleanupTestData() {
	_ = suite.users.Collection().Drop(suite.ctx)
	_ = suite.products.Collection().Drop(suite.ctx)
}

func (suite *MongoRepositoryTestSuite) seedUsers() []*TestUser {
	users := []*TestUser{
		{Email: "ann@example.com", Name: "Ann", Age: 25, Status: "active"},
		{Email: "bob@example.com", Name: "Bob", Age: 35, Status: "inactive"},
		{Email: "cid@example.com", Name: "Cid", Age: 45, Status: "active"},
	}
	require.True(suite.T(), suite.users.Insert(suite.ctx, users))
	suite.events = nil
	return users
}

func (suite *MongoRepositoryTestSuite) TestProviderHealth() {
	assert.NoError(suite.T(), suite.provider.Health())
	info := suite.provider.ProviderInfo()
	assert.Equal(suite.T(), repo.DatabaseTypeDocument, info.DatabaseType)
	assert.True(suite.T(), repo.HasFeature(suite.provider, repo.FeatureSoftDelete))
}

func (suite *MongoRepositoryTestSuite) TestCreateAndFind() {
	user := &TestUser{Email: "john@example.com", Name: "John", Age: 30}
	require.True(suite.T(), suite.users.Create(suite.ctx, user))

	assert.False(suite.T(), user.ID.IsZero())
	assert.False(suite.T(), user.CreatedAt.IsZero())

	found, ok := suite.users.Find(suite.ctx, user.ID.Hex())
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), "John", found.Name)

	_, ok = suite.users.Find(suite.ctx, primitive.NewObjectID())
	assert.False(suite.T(), ok)

	require.Len(suite.T(), suite.events, 1)
	assert.Equal(suite.T(), repo.EventCreated, suite.events[0].Action)
	assert.Equal(suite.T(), user.ID, suite.events[0].ID)
}

func (suite *MongoRepositoryTestSuite) TestCreateRunsValidation() {
	assert.False(suite.T(), suite.users.Create(suite.ctx, &TestUser{Name: "No Email"}))

	count, err := suite.users.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), count)
	assert.Empty(suite.T(), suite.events)
}

func (suite *MongoRepositoryTestSuite) TestLookups() {
	suite.seedUsers()

	active, err := suite.users.FindByField(suite.ctx, "status", "active", repo.OrderBy("age", repo.OrderAsc))
	require.NoError(suite.T(), err)
	require.Len(suite.T(), active, 2)
	assert.Equal(suite.T(), "Ann", active[0].Name)

	between, err := suite.users.FindWhereBetween(suite.ctx, "age", 30, 50)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), between, 2)

	in, err := suite.users.FindWhereIn(suite.ctx, "name", []string{"Ann", "Cid"})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), in, 2)

	notIn, err := suite.users.FindWhereNotIn(suite.ctx, "name", []string{"Ann", "Cid"})
	require.NoError(suite.T(), err)
	require.Len(suite.T(), notIn, 1)
	assert.Equal(suite.T(), "Bob", notIn[0].Name)

	like, err := suite.users.FindWhere(suite.ctx, []repo.Condition{repo.Compare("email", repo.OpLike, "%@example.com")})
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), like, 3)

	first, err := suite.users.First(suite.ctx, repo.Latest("age"))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Cid", first.Name)

	_, err = suite.users.First(suite.ctx, repo.WhereField("name", "Nobody"))
	assert.True(suite.T(), repo.IsNotFound(err))

	limited, err := suite.users.Limit(suite.ctx, 2)
	require.NoError(suite.T(), err)
	assert.Len(suite.T(), limited, 2)

	exists, err := suite.users.Exists(suite.ctx, repo.WhereField("status", "inactive"))
	require.NoError(suite.T(), err)
	assert.True(suite.T(), exists)

	names, err := suite.users.Pluck(suite.ctx, "name", repo.OrderBy("name", repo.OrderAsc))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), []interface{}{"Ann", "Bob", "Cid"}, names)

	_, err = suite.users.FindWhere(suite.ctx, []repo.Condition{repo.Has("orders", nil)})
	assert.True(suite.T(), repo.IsUnsupported(err))
}

func (suite *MongoRepositoryTestSuite) TestScopeAppliesToOneCall() {
	suite.seedUsers()
	adults := ScopeFunc(func(f bson.D) bson.D {
		return bson.D{{Key: "$and", Value: bson.A{f, bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 30}}}}}}}
	})

	scoped, err := suite.users.Count(suite.ctx, repo.Scope(adults))
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, scoped)

	all, err := suite.users.Count(suite.ctx)
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 3, all)
}

func (suite *MongoRepositoryTestSuite) TestUpdate() {
	users := suite.seedUsers()

	require.True(suite.T(), suite.users.Update(suite.ctx, users[0].ID, map[string]interface{}{"age": 26, "status": "vip"}))
	found, ok := suite.users.Find(suite.ctx, users[0].ID)
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), 26, found.Age)
	assert.Equal(suite.T(), "vip", found.Status)
	assert.True(suite.T(), found.UpdatedAt.After(found.CreatedAt) || found.UpdatedAt.Equal(found.CreatedAt))

	assert.False(suite.T(), suite.users.Update(suite.ctx, primitive.NewObjectID(), map[string]interface{}{"age": 1}))
	assert.False(suite.T(), suite.users.Update(suite.ctx, users[0].ID, map[string]interface{}{"unknown": 1}))
	assert.False(suite.T(), suite.users.Update(suite.ctx, users[0].ID, map[string]interface{}{"age": "old"}))
}

func (suite *MongoRepositoryTestSuite) TestSoftDeleteAndRestore() {
	users := suite.seedUsers()
	id := users[1].ID

	require.True(suite.T(), suite.users.Delete(suite.ctx, id))
	assert.False(suite.T(), suite.users.Delete(suite.ctx, id), "trashed documents are not deleted again")

	_, ok := suite.users.Find(suite.ctx, id)
	assert.False(suite.T(), ok)

	trashed, ok := suite.users.Find(suite.ctx, id, repo.OnlyTrashed())
	require.True(suite.T(), ok)
	assert.NotNil(suite.T(), trashed.DeletedAt)

	_, ok = suite.users.Find(suite.ctx, users[0].ID, repo.OnlyTrashed())
	assert.False(suite.T(), ok)

	withTrashed, err := suite.users.Count(suite.ctx, repo.WithTrashed())
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 3, withTrashed)

	require.True(suite.T(), suite.users.Restore(suite.ctx, id))
	restored, ok := suite.users.Find(suite.ctx, id)
	require.True(suite.T(), ok)
	assert.Nil(suite.T(), restored.DeletedAt)

	assert.False(suite.T(), suite.users.Restore(suite.ctx, id), "only trashed documents can be restored")
}

func (suite *MongoRepositoryTestSuite) TestForceDelete() {
	users := suite.seedUsers()
	require.True(suite.T(), suite.users.Delete(suite.ctx, users[0].ID))
	require.True(suite.T(), suite.users.ForceDelete(suite.ctx, users[0].ID))

	count, err := suite.users.Count(suite.ctx, repo.WithTrashed())
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, count)
}

func (suite *MongoRepositoryTestSuite) TestHardDeleteWithoutSoftDelete() {
	product := &TestProduct{Name: "Pen", Price: 1.5, Stock: 10}
	require.True(suite.T(), suite.products.Create(suite.ctx, product))
	require.True(suite.T(), suite.products.Delete(suite.ctx, product.ID))

	count, err := suite.products.Count(suite.ctx, repo.WithTrashed())
	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), count)

	assert.False(suite.T(), suite.products.Restore(suite.ctx, product.ID))
}

func (suite *MongoRepositoryTestSuite) TestDeleteWhere() {
	suite.seedUsers()

	_, err := suite.users.DeleteWhere(suite.ctx, repo.In("status", "active"))
	assert.True(suite.T(), repo.IsInvalidArgument(err))

	ok, err := suite.users.DeleteWhereIn(suite.ctx, "status", []string{"active"})
	require.NoError(suite.T(), err)
	require.True(suite.T(), ok)

	left, err := suite.users.All(suite.ctx)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), left, 1)
	assert.Equal(suite.T(), "Bob", left[0].Name)
}

func (suite *MongoRepositoryTestSuite) TestUpserts() {
	suite.seedUsers()

	existing, err := suite.users.FirstOrNew(suite.ctx, map[string]interface{}{"email": "ann@example.com"})
	require.NoError(suite.T(), err)
	assert.False(suite.T(), existing.ID.IsZero())

	fresh, err := suite.users.FirstOrNew(suite.ctx, map[string]interface{}{"email": "new@example.com", "age": 20})
	require.NoError(suite.T(), err)
	assert.True(suite.T(), fresh.ID.IsZero())
	assert.Equal(suite.T(), 20, fresh.Age)

	created, err := suite.users.FirstOrCreate(suite.ctx, map[string]interface{}{"email": "dan@example.com"})
	require.NoError(suite.T(), err)
	assert.False(suite.T(), created.ID.IsZero())

	again, err := suite.users.FirstOrCreate(suite.ctx, map[string]interface{}{"email": "dan@example.com"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), created.ID, again.ID)

	updated, err := suite.users.UpdateOrCreate(suite.ctx,
		map[string]interface{}{"email": "bob@example.com"},
		map[string]interface{}{"status": "active"})
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "active", updated.Status)

	_, err = suite.users.FirstOrNew(suite.ctx, map[string]interface{}{})
	assert.True(suite.T(), repo.IsInvalidArgument(err))
}

func (suite *MongoRepositoryTestSuite) TestPaginate() {
	suite.seedUsers()

	req := repo.PageRequest{Page: 2, Limit: 2, Path: "/users", Query: url.Values{"status": {"any"}}}
	page, err := suite.users.Paginate(suite.ctx, req, repo.OrderBy("age", repo.OrderAsc))
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), page.Total)
	assert.EqualValues(suite.T(), 3, *page.Total)
	assert.Equal(suite.T(), 2, page.LastPage)
	require.Len(suite.T(), page.Items, 1)
	assert.Equal(suite.T(), "Cid", page.Items[0].Name)
	assert.Contains(suite.T(), page.Links.Prev, "status=any")

	simple, err := suite.users.SimplePaginate(suite.ctx, repo.PageRequest{Page: 1, Limit: 2})
	require.NoError(suite.T(), err)
	assert.Nil(suite.T(), simple.Total)
	assert.True(suite.T(), simple.HasMore)
}

func (suite *MongoRepositoryTestSuite) TestRawAndEntityInfo() {
	suite.seedUsers()

	result, err := suite.users.Raw(suite.ctx, `{"count": "test_users", "query": {"status": "active"}}`)
	require.NoError(suite.T(), err)
	n, err := result.RowsAffected()
	require.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 2, n)

	info, err := suite.users.EntityInfo()
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "test_users", info.TableName)
	assert.Equal(suite.T(), []string{"_id"}, info.PrimaryKey)
	assert.True(suite.T(), info.SoftDeletes())
}

func TestMongoRepositorySuite(t *testing.T) {
	suite.Run(t, new(MongoRepositoryTestSuite))
}
