package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"converge/internal/event"
	"converge/internal/resource"
	"converge/pkg/apis/converge/v1alpha1"
)

// schemaDB stands in for a database server holding one schema per primary.
type schemaDB struct {
	mu      sync.Mutex
	schemas map[string]string
	open    int
	opened  int
	failOn  string
}

type schemaConn struct {
	db *schemaDB
}

func (c *schemaConn) Close() error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.open--
	return nil
}

func (db *schemaDB) connect(context.Context, *Context) (*schemaConn, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.open++
	db.opened++
	return &schemaConn{db: db}, nil
}

func (db *schemaDB) dependent() *ExternalDependent[string, *schemaConn] {
	return NewExternalDependent("schema", ExternalFuncs[string, *schemaConn]{
		Connect: db.connect,
		Desired: func(_ context.Context, rc *Context) (string, bool, error) {
			return rc.Primary().GetName() + "_db", true, nil
		},
		Fetch: func(_ context.Context, rc *Context, conn *schemaConn) (string, bool, error) {
			conn.db.mu.Lock()
			defer conn.db.mu.Unlock()
			if conn.db.failOn == "fetch" {
				return "", false, errors.New("connection reset")
			}
			v, ok := conn.db.schemas[rc.Primary().GetName()]
			return v, ok, nil
		},
		Create: func(_ context.Context, rc *Context, conn *schemaConn, desired string) (string, error) {
			conn.db.mu.Lock()
			defer conn.db.mu.Unlock()
			conn.db.schemas[rc.Primary().GetName()] = desired
			return desired, nil
		},
		Delete: func(_ context.Context, rc *Context, conn *schemaConn, _ string) error {
			conn.db.mu.Lock()
			defer conn.db.mu.Unlock()
			delete(conn.db.schemas, rc.Primary().GetName())
			return nil
		},
	})
}

func TestExternalDependent_ConnectionPerCall(t *testing.T) {
	db := &schemaDB{schemas: map[string]string{}}
	dep := db.dependent()
	assert.Equal(t, CreateUpdateDelete, dep.MaxMode())

	w := mustWorkflow(Define[string]("schema", dep))
	rc := testContext()

	res := w.Reconcile(context.Background(), rc)
	require.NoError(t, res.Err())
	n, _ := res.Node("schema")
	assert.Equal(t, v1alpha1.DependentCreated, n.State)
	assert.Equal(t, "demo_db", db.schemas["demo"])
	assert.Equal(t, 2, db.opened, "one connection for fetch, one for create")
	assert.Zero(t, db.open, "every connection is released")

	// Without an update function a created schema is never changed.
	db.schemas["demo"] = "renamed"
	res = w.Reconcile(context.Background(), rc)
	require.NoError(t, res.Err())
	n, _ = res.Node("schema")
	assert.Equal(t, v1alpha1.DependentUnchanged, n.State)

	res = w.Cleanup(context.Background(), rc)
	require.NoError(t, res.Err())
	assert.True(t, res.Complete())
	assert.Empty(t, db.schemas)
	assert.Zero(t, db.open)
}

func TestExternalDependent_ReleasesOnError(t *testing.T) {
	db := &schemaDB{schemas: map[string]string{}, failOn: "fetch"}
	w := mustWorkflow(Define[string]("schema", db.dependent()))

	res := w.Reconcile(context.Background(), testContext())
	require.Error(t, res.Err())
	assert.Contains(t, res.Err().Error(), "connection reset")
	assert.Equal(t, 1, db.opened)
	assert.Zero(t, db.open)
}

func TestExternalDependent_MaxMode(t *testing.T) {
	fetch := func(context.Context, *Context, NoConnection) (int, bool, error) { return 0, true, nil }
	desired := func(context.Context, *Context) (int, bool, error) { return 0, true, nil }
	create := func(_ context.Context, _ *Context, _ NoConnection, v int) (int, error) { return v, nil }
	update := func(_ context.Context, _ *Context, _ NoConnection, _, v int) (int, error) { return v, nil }

	assert.Equal(t, ReadOnly, NewExternalDependent("x", ExternalFuncs[int, NoConnection]{Fetch: fetch}).MaxMode())
	assert.Equal(t, CreateOnly, NewExternalDependent("x", ExternalFuncs[int, NoConnection]{
		Fetch: fetch, Desired: desired, Create: create,
	}).MaxMode())
	assert.Equal(t, CreateUpdate, NewExternalDependent("x", ExternalFuncs[int, NoConnection]{
		Fetch: fetch, Desired: desired, Create: create, Update: update,
	}).MaxMode())

	w, err := New(Define[int]("x", NewExternalDependent("x", ExternalFuncs[int, NoConnection]{Fetch: fetch}), WithMode(CreateOnly)))
	assert.Nil(t, w)
	var modeErr *ModeError
	assert.ErrorAs(t, err, &modeErr)
}

func TestPolled(t *testing.T) {
	var (
		mu      sync.Mutex
		healthy = false
		fetches int
	)
	src, err := event.NewPollingSource(event.PollingOptions[bool]{
		Name:   "health",
		Period: time.Hour,
		Fetch: func(context.Context, resource.ID) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			fetches++
			return healthy, nil
		},
	})
	require.NoError(t, err)

	w := mustWorkflow(
		Define[bool]("health", Polled("health", src), ReadyWhen(func(_ context.Context, _ *Context, up bool) (bool, error) {
			return up, nil
		})),
		Define[string]("after", mem(newMemStore(), "after"), DependsOn("health")),
	)
	rc := testContext()

	res := w.Reconcile(context.Background(), rc)
	require.NoError(t, res.Err())
	n, _ := res.Node("health")
	assert.False(t, n.Ready)
	after, _ := res.Node("after")
	assert.Equal(t, v1alpha1.DependentSkipped, after.State)
	assert.Equal(t, []resource.ID{rc.ID()}, src.Tracked())

	mu.Lock()
	healthy = true
	mu.Unlock()
	_, err = src.Refresh(context.Background(), rc.ID())
	require.NoError(t, err)

	res = w.Reconcile(context.Background(), rc)
	require.NoError(t, res.Err())
	assert.True(t, res.Ready())

	w.Forget(rc.ID())
	assert.Empty(t, src.Tracked())
}
