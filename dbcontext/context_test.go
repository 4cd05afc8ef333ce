package dbcontext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/storekit/config"
	"github.com/poiesic/storekit/core"
	"github.com/poiesic/storekit/migration"
	"github.com/poiesic/storekit/storage"
	"github.com/poiesic/storekit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEngine counts open attempts and can hold them until released.
type countingEngine struct {
	storage.Engine
	opens atomic.Int32
	gate  chan struct{}
}

func (e *countingEngine) Open(name string, version uint64, opts storage.OpenOptions) storage.Request {
	e.opens.Add(1)
	if e.gate != nil {
		<-e.gate
	}
	return e.Engine.Open(name, version, opts)
}

func newEngine(t *testing.T) *countingEngine {
	t.Helper()
	b, err := badger.NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return &countingEngine{Engine: b}
}

func testConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		DBName:  "t",
		Version: 1,
		Stores: []config.StoreConfig{
			{
				Name:          "mocks",
				KeyPath:       core.Path("_id"),
				AutoIncrement: true,
				Indexes:       []config.IndexConfig{{Name: "by_url", KeyPath: core.Path("url")}},
			},
		},
	}
}

func newContext(t *testing.T, engine storage.Engine, opts ...Option) *Context {
	t.Helper()
	holder, err := config.NewHolder(testConfig())
	require.NoError(t, err)
	c, err := NewFromConfig(engine, holder, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func add(s storage.ObjectStore, url string) (any, error) {
	return s.Add(core.Record{"url": url, "method": "GET"}, nil), nil
}

func count(t *testing.T, c *Context) int {
	t.Helper()
	n, err := Run[int](context.Background(), c, "mocks", storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.Count(nil), nil
	})
	require.NoError(t, err)
	return n
}

func TestNew_Validation(t *testing.T) {
	engine := newEngine(t)

	_, err := New(nil, "t", 1)
	assert.Error(t, err)

	_, err = New(engine, "", 1)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(engine, "t", 0)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(engine, "t", 1, WithLogger(nil))
	assert.Error(t, err)

	_, err = New(engine, "t", 1, WithMigrations(nil))
	assert.Error(t, err)

	holder, err := config.NewHolder(nil)
	require.NoError(t, err)
	_, err = NewFromConfig(engine, holder)
	assert.ErrorIs(t, err, config.ErrNotInitialized)
}

func TestOpen_ConcurrentCallersShareOneOpen(t *testing.T) {
	engine := newEngine(t)
	engine.gate = make(chan struct{})
	c := newContext(t, engine)

	const callers = 8
	conns := make([]storage.Connection, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conns[i], errs[i] = c.Open(context.Background())
		}()
	}

	// let every caller join the pending open before it is allowed through
	time.Sleep(50 * time.Millisecond)
	close(engine.gate)
	wg.Wait()

	assert.Equal(t, int32(1), engine.opens.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, conns[0], conns[i])
	}

	// cached afterwards
	conn, err := c.GetDB(context.Background())
	require.NoError(t, err)
	assert.Same(t, conns[0], conn)
	assert.Equal(t, int32(1), engine.opens.Load())
}

func TestOpen_MigrationErrorIsReturnedAndNotCached(t *testing.T) {
	engine := newEngine(t)
	boom := errors.New("migration failed")

	var runs atomic.Int32
	failing := func(s storage.Schema) error {
		if runs.Add(1) == 1 {
			return boom
		}
		return nil
	}
	c := newContext(t, engine, WithMigrations(failing))

	_, err := c.Open(context.Background())
	assert.Same(t, boom, err)

	// the store created by the first migration was discarded with the upgrade
	dbs, err := engine.Databases()
	require.NoError(t, err)
	assert.Empty(t, dbs)

	conn, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int32(2), engine.opens.Load())
	assert.Equal(t, []string{"mocks"}, conn.StoreNames())
	assert.Equal(t, uint64(1), conn.Version())
}

func TestOpen_MigrationsRunInOrderOnlyOnUpgrade(t *testing.T) {
	engine := newEngine(t)

	var mu sync.Mutex
	var order []string
	step := func(name string) migration.Migration {
		return func(storage.Schema) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	c := newContext(t, engine, WithMigrations(step("a"), step("b")))
	_, err := c.Open(context.Background())
	require.NoError(t, err)
	c.Close()

	_, err = c.Open(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestOpen_CanceledWait(t *testing.T) {
	engine := newEngine(t)
	engine.gate = make(chan struct{})
	c := newContext(t, engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(engine.gate)
	conn, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestOpen_CloseDuringOpen(t *testing.T) {
	engine := newEngine(t)
	engine.gate = make(chan struct{})
	c := newContext(t, engine)

	result := make(chan error, 1)
	go func() {
		_, err := c.Open(context.Background())
		result <- err
	}()
	time.Sleep(50 * time.Millisecond)
	c.Close()
	close(engine.gate)

	assert.ErrorIs(t, <-result, ErrContextClosed)

	conn, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, conn)
}

func TestClose_ReopensOnNextUse(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)

	// nothing open yet
	c.Close()

	first, err := c.GetDB(context.Background())
	require.NoError(t, err)
	c.Close()

	_, err = first.Transaction([]string{"mocks"}, storage.ReadOnly)
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	assert.Equal(t, 0, count(t, c))
	assert.Equal(t, int32(2), engine.opens.Load())
}

func TestVersionChange_ClosesConnection(t *testing.T) {
	engine := newEngine(t)
	old := newContext(t, engine)
	first, err := old.GetDB(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Version = 2
	holder, err := config.NewHolder(cfg)
	require.NoError(t, err)
	upgraded, err := NewFromConfig(engine, holder)
	require.NoError(t, err)
	defer upgraded.Close()

	// the upgrade only completes once old has closed its connection
	conn, err := upgraded.GetDB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), conn.Version())

	_, err = first.Transaction([]string{"mocks"}, storage.ReadOnly)
	assert.ErrorIs(t, err, storage.ErrInvalidState)

	// reopening at the older version is now refused
	_, err = old.GetDB(context.Background())
	assert.ErrorIs(t, err, storage.ErrVersion)
}

func TestNewFromConfig_MigrationLogsToContextLogger(t *testing.T) {
	engine := newEngine(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newContext(t, engine, WithLogger(logger))

	_, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "created store")
	assert.Contains(t, buf.String(), "index=by_url")
}

func TestRunTransaction_Request(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	ctx := context.Background()

	key, err := c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return add(s, "/a")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)

	rec, err := Run[core.Record](ctx, c, "mocks", storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.Get(key), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/a", rec["url"])

	missing, err := Run[core.Record](ctx, c, "mocks", storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.Get(int64(99)), nil
	})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRunTransaction_RequestFailure(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	ctx := context.Background()

	_, err := c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return s.Add(core.Record{"_id": int64(1), "url": "/a"}, nil), nil
	})
	require.NoError(t, err)

	_, err = c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return s.Add(core.Record{"_id": int64(1), "url": "/b"}, nil), nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConstraint)
	assert.NotErrorIs(t, err, ErrTransactionAborted)
}

func TestRunTransaction_AwaitableResolvesAfterCommit(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	ctx := context.Background()

	v, err := c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		first := s.Add(core.Record{"url": "/a"}, nil)
		second := s.Add(core.Record{"url": "/b"}, nil)
		return Go(func() (any, error) {
			<-first.Done()
			<-second.Done()
			time.Sleep(20 * time.Millisecond)
			return "done", nil
		}), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", v)

	// both writes are durable by the time the call returned
	assert.Equal(t, 2, count(t, c))
}

func TestRunTransaction_ReadyAwaitableWaitsForQueuedWrites(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	const writes = 200

	var lastWritten atomic.Bool
	v, err := c.RunTransaction(context.Background(), "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		var last storage.Request
		for i := 0; i < writes; i++ {
			last = s.Add(core.Record{"url": fmt.Sprintf("/%d", i)}, nil)
		}
		last.OnSuccess(func(any) { lastWritten.Store(true) })

		f := NewFuture()
		f.Resolve("ready")
		return f, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.True(t, lastWritten.Load())
	assert.Equal(t, writes, count(t, c))
}

func TestRunTransaction_AwaitableFailure(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	boom := errors.New("boom")

	_, err := c.RunTransaction(context.Background(), "mocks", storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		f := NewFuture()
		f.Reject(boom)
		return f, nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunTransaction_AbortedTransaction(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	ctx := context.Background()

	_, err := c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return s.Put(core.Record{"_id": int64(1), "url": "/a"}, nil), nil
	})
	require.NoError(t, err)

	// the awaitable succeeds but the duplicate add aborts the transaction
	_, err = c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		s.Add(core.Record{"url": "/b"}, nil)
		s.Add(core.Record{"_id": int64(1), "url": "/c"}, nil)
		f := NewFuture()
		f.Resolve("ignored")
		return f, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionAborted)
	assert.ErrorIs(t, err, storage.ErrConstraint)
	assert.Equal(t, 1, count(t, c))
}

func TestRunTransaction_NilResultWaitsForCommit(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)

	v, err := c.RunTransaction(context.Background(), "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		s.Add(core.Record{"url": "/a"}, nil)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, 1, count(t, c))
}

func TestRunTransaction_OpErrorAborts(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	boom := errors.New("boom")

	_, err := c.RunTransaction(context.Background(), "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		s.Add(core.Record{"url": "/a"}, nil)
		return nil, boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 0, count(t, c))
}

func TestRunTransaction_PanicAbortsTransaction(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	panicked := transactionCounter(storage.ReadWrite, outcomePanic)
	before := panicked.Get()

	assert.PanicsWithValue(t, "boom", func() {
		_, _ = c.RunTransaction(context.Background(), "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
			s.Add(core.Record{"url": "/lost"}, nil)
			panic("boom")
		})
	})
	assert.Equal(t, before+1, panicked.Get())

	// later read-write transactions are not stuck behind the panicked one
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := c.RunTransaction(ctx, "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
			return add(s, fmt.Sprintf("/%d", i))
		})
		cancel()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, count(t, c))

	// the connection drains, so an upgrade elsewhere is not blocked
	c.Close()
	conn, err := badger.OpenSync(engine, "t", 2, nil)
	require.NoError(t, err)
	conn.Close()
}

func TestRunTransaction_UnknownStore(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)

	_, err := c.RunTransaction(context.Background(), "nope", storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		t.Error("op must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_UnexpectedResultType(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)

	_, err := Run[string](context.Background(), c, "mocks", storage.ReadOnly, func(s storage.ObjectStore) (any, error) {
		return s.Count(nil), nil
	})
	assert.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestRunTransaction_CountsOutcomes(t *testing.T) {
	engine := newEngine(t)
	c := newContext(t, engine)
	committed := transactionCounter(storage.ReadWrite, outcomeCommitted)
	opError := transactionCounter(storage.ReadWrite, outcomeOpError)
	before, beforeErr := committed.Get(), opError.Get()

	_, err := c.RunTransaction(context.Background(), "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return add(s, "/a")
	})
	require.NoError(t, err)
	_, err = c.RunTransaction(context.Background(), "mocks", storage.ReadWrite, func(s storage.ObjectStore) (any, error) {
		return nil, errors.New("nope")
	})
	require.Error(t, err)

	assert.Equal(t, before+1, committed.Get())
	assert.Equal(t, beforeErr+1, opError.Get())
}

func TestFuture_SettlesOnce(t *testing.T) {
	f := NewFuture()
	v, err := f.Result()
	assert.Nil(t, v)
	assert.NoError(t, err)

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Reject(errors.New("late")))
	assert.False(t, f.Resolve(2))

	<-f.Done()
	v, err = f.Result()
	assert.Equal(t, 1, v)
	assert.NoError(t, err)

	g := Go(func() (any, error) { return nil, errors.New("failed") })
	<-g.Done()
	_, err = g.Result()
	assert.EqualError(t, err, "failed")
}
