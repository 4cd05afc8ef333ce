package service

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/dbcontext"
	"github.com/poiesic/storekit/repository"
	"github.com/poiesic/storekit/storage"
	"github.com/poiesic/storekit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHolder(t *testing.T) *config.Holder {
	t.Helper()
	holder, err := config.NewHolder(&config.DatabaseConfig{
		DBName:  "services",
		Version: 1,
		Stores: []config.StoreConfig{
			config.DefaultHTTPStore(),
			{
				Name:          "archive",
				KeyPath:       core.Path("_id"),
				AutoIncrement: true,
				Indexes:       []config.IndexConfig{{Name: "by_url", KeyPath: core.Path("url")}},
			},
			DefaultUserStore(),
		},
	})
	require.NoError(t, err)
	t.Cleanup(holder.Clear)
	return holder
}

func testDB(t *testing.T, holder *config.Holder) *dbcontext.Context {
	t.Helper()
	b, err := badger.NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	db, err := dbcontext.NewFromConfig(b, holder)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func newMockService(t *testing.T) *MockService {
	t.Helper()
	holder := testHolder(t)
	svc, err := NewMockService(testDB(t, holder), holder, "")
	require.NoError(t, err)
	return svc
}

func TestNewService_Stores(t *testing.T) {
	holder := testHolder(t)
	db := testDB(t, holder)

	all, err := NewMockService(db, holder, "")
	require.NoError(t, err)
	assert.Equal(t, "httpMocks", all.DefaultStore())
	assert.Equal(t, []string{"httpMocks", "archive", "users"}, all.StoreNames())

	one, err := NewMockService(db, holder, "archive")
	require.NoError(t, err)
	assert.Equal(t, "archive", one.DefaultStore())
	_, err = one.Repo("httpMocks")
	assert.ErrorIs(t, err, ErrStoreNotRegistered)

	_, err = NewMockService(db, holder, "missing")
	assert.ErrorIs(t, err, ErrStoreNotRegistered)

	empty, err := config.NewHolder(nil)
	require.NoError(t, err)
	_, err = NewMockService(db, empty, "")
	assert.ErrorIs(t, err, config.ErrNotInitialized)
}

func TestMockService_CRUD(t *testing.T) {
	svc := newMockService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &core.HttpMock{Method: "GET"}, "")
	assert.ErrorIs(t, err, core.ErrInvalidHttpMock)

	mock := core.NewHttpMock("/users", "GET")
	mock.ServiceCode = "users-api"
	created, err := svc.Create(ctx, mock, "")
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := svc.Get(ctx, created.ID, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/users", got.URL)
	assert.Equal(t, 200, got.HTTPCodeResponseValue)

	before := got.UpdatedAt
	time.Sleep(2 * time.Millisecond)
	got.HTTPCodeResponseValue = 404
	updated, err := svc.Update(ctx, got, "")
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(before))

	got, err = svc.Get(ctx, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 404, got.HTTPCodeResponseValue)

	deleted, err := svc.Delete(ctx, created.ID, "")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = svc.Delete(ctx, created.ID, "")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = svc.Get(ctx, int64(1), "nope")
	assert.ErrorIs(t, err, ErrStoreNotRegistered)
}

func TestMockService_UpdateChecks(t *testing.T) {
	svc := newMockService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, core.NewHttpMock("/a", "GET"), "")
	assert.ErrorIs(t, err, repository.ErrPrimaryKeyMissing)

	ghost := core.NewHttpMock("/a", "GET")
	ghost.ID = 77
	_, err = svc.Update(ctx, ghost, "")
	assert.ErrorIs(t, err, repository.ErrEntityNotFound)

	bad := core.NewHttpMock("/a", "BREW")
	bad.ID = 1
	_, err = svc.Update(ctx, bad, "")
	assert.ErrorIs(t, err, core.ErrInvalidMethod)
}

func TestMockService_AllAggregatesStores(t *testing.T) {
	svc := newMockService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, core.NewHttpMock("/a", "GET"), "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, core.NewHttpMock("/b", "GET"), "archive")
	require.NoError(t, err)

	all, err := svc.All(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "/a", all[0].URL)
	assert.Equal(t, "/b", all[1].URL)

	archived, err := svc.All(ctx, "archive")
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	unknown, err := svc.All(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestMockService_Finders(t *testing.T) {
	svc := newMockService(t)
	ctx := context.Background()

	for _, m := range []struct{ url, method, code string }{
		{"/a", "GET", "alpha"},
		{"/a", "POST", "alpha"},
		{"/b", "GET", "beta"},
	} {
		mock := core.NewHttpMock(m.url, m.method)
		mock.ServiceCode = m.code
		_, err := svc.Create(ctx, mock, "")
		require.NoError(t, err)
	}

	byURL, err := svc.FindByURL(ctx, "/a", "")
	require.NoError(t, err)
	assert.Len(t, byURL, 2)

	byCode, err := svc.FindByServiceCode(ctx, "beta", "")
	require.NoError(t, err)
	require.Len(t, byCode, 1)
	assert.Equal(t, "/b", byCode[0].URL)

	exact, err := svc.FindByURLAndMethod(ctx, "/a", "POST", "")
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, "POST", exact[0].Method)

	ranged, err := svc.FindByIndex(ctx, core.LowerBound("/a", true), "by_url", core.KeyPath{}, "")
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	// archive has no serviceCode index, so the first index is picked and rejected
	_, err = svc.FindByServiceCode(ctx, "beta", "archive")
	assert.ErrorIs(t, err, repository.ErrKeyPathMismatch)
}

func TestResponseBodyAs(t *testing.T) {
	svc := newMockService(t)
	ctx := context.Background()

	withJSON := core.NewHttpMock("/json", "GET")
	withJSON.ResponseBody = `{"name":"ada","tags":["x","y"]}`
	_, err := svc.Create(ctx, withJSON, "")
	require.NoError(t, err)

	withText := core.NewHttpMock("/text", "GET")
	withText.ResponseBody = "plain text"
	_, err = svc.Create(ctx, withText, "")
	require.NoError(t, err)

	type payload struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	body, ok, err := ResponseBodyAs[payload](ctx, svc, withJSON.ID, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload{Name: "ada", Tags: []string{"x", "y"}}, body)

	raw, ok, err := ResponseBodyAs[string](ctx, svc, withText.ID, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "plain text", raw)

	_, _, err = ResponseBodyAs[payload](ctx, svc, withText.ID, "")
	assert.Error(t, err)

	_, ok, err = ResponseBodyAs[payload](ctx, svc, int64(999), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserService(t *testing.T) {
	holder := testHolder(t)
	users, err := NewUserService(testDB(t, holder), holder, "")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = users.Create(ctx, &core.User{Name: "nobody"}, "")
	assert.ErrorIs(t, err, core.ErrEmptyEmail)

	ada, err := users.Create(ctx, &core.User{Name: "Ada", Email: "ada@example.com"}, "")
	require.NoError(t, err)
	require.NotZero(t, ada.ID)

	found, err := users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ada.ID, found.ID)

	missing, err := users.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = users.Create(ctx, &core.User{Name: "Imposter", Email: "ada@example.com"}, "")
	assert.ErrorIs(t, err, storage.ErrConstraint)
}

func TestPrimaryKey(t *testing.T) {
	type item struct {
		ID   string `msgpack:"id,omitempty"`
		Code string `msgpack:"code,omitempty"`
	}

	key, err := PrimaryKey(&item{ID: "a", Code: "c"}, core.Path("code"))
	require.NoError(t, err)
	assert.Equal(t, "c", key)

	key, err = PrimaryKey(&item{ID: "a"}, core.Path("code"))
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	_, err = PrimaryKey(&item{}, core.KeyPath{})
	assert.ErrorIs(t, err, repository.ErrPrimaryKeyMissing)
}
