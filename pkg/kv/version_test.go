package kv

import (
	"context"
	"testing"

	"github.com/oneconcern/vkv/pkg/errors"
	"github.com/oneconcern/vkv/pkg/model"
	"github.com/oneconcern/vkv/pkg/status"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeTravel(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	st, err := New(ctx, repo)
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, "meta.json", []byte("{}")))
	s0, err := st.Commit(ctx, "init")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = New(ctx, repo, WithBranch(model.DefaultBranch))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Set(ctx, "meta.json", []byte(`{"v":1}`)))
	s1, err := st.Commit(ctx, "update")
	require.NoError(t, err)
	assert.NotEqual(t, s0, s1)

	require.NoError(t, st.Checkout(ctx, model.SnapshotVersion(s0)))
	value, found, err := st.Get(ctx, "meta.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "{}", string(value))

	require.NoError(t, st.Checkout(ctx, model.BranchVersion(model.DefaultBranch)))
	value, found, err = st.Get(ctx, "meta.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"v":1}`, string(value))
	assert.True(t, errors.Is(st.Set(ctx, "meta.json", nil), status.ErrReadOnlySession))

	var messages []string
	for snapshot, err := range st.Log(ctx) {
		require.NoError(t, err)
		messages = append(messages, snapshot.Message)
	}
	require.Len(t, messages, 3)
	assert.Equal(t, []string{"update", "init"}, messages[:2])
}

func TestCommitConflict(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first, err := New(ctx, repo)
	require.NoError(t, err)
	defer first.Close()
	second, err := New(ctx, repo)
	require.NoError(t, err)
	defer second.Close()
	base := second.SnapshotID()

	require.NoError(t, first.Set(ctx, "k", []byte("first")))
	require.NoError(t, second.Set(ctx, "k", []byte("second")))

	_, err = first.Commit(ctx, "first")
	require.NoError(t, err)

	_, err = second.Commit(ctx, "second")
	require.True(t, errors.Is(err, status.ErrConflict))

	// the losing store is left as it was
	branch, writable := second.CurrentBranch()
	assert.True(t, writable)
	assert.Equal(t, model.DefaultBranch, branch)
	assert.Equal(t, base, second.SnapshotID())
	assert.True(t, second.HasUncommittedChanges())

	// recovering means checking out the new tip and reapplying changes
	require.NoError(t, second.Checkout(ctx, model.BranchVersion(model.DefaultBranch), Writable()))
	assert.False(t, second.HasUncommittedChanges())
	value, _, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", string(value))
	require.NoError(t, second.Set(ctx, "k", []byte("second")))
	_, err = second.Commit(ctx, "second, again")
	require.NoError(t, err)
}

func TestEmptyCommitPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("reject", func(t *testing.T) {
		st, _ := setupStore(t)
		_, err := st.Commit(ctx, "empty")
		assert.True(t, errors.Is(err, status.ErrEmptyCommit))
		_, writable := st.CurrentBranch()
		assert.True(t, writable)
	})

	t.Run("allow", func(t *testing.T) {
		st, _ := setupStore(t, WithEmptyCommitPolicy(AllowEmptyCommit))
		before := st.SnapshotID()
		id, err := st.Commit(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, before, id)
		_, writable := st.CurrentBranch()
		assert.False(t, writable, "an empty commit pins the store read-only like any other commit")
		assert.Equal(t, model.SnapshotVersion(id), st.CurrentVersion())
	})

	t.Run("allow and keep writing", func(t *testing.T) {
		st, _ := setupStore(t, WithEmptyCommitPolicy(AllowEmptyCommit), WithAfterCommit(AfterCommitWritable))
		before := st.SnapshotID()
		id, err := st.Commit(ctx, "empty")
		require.NoError(t, err)
		assert.Equal(t, before, id)
		branch, writable := st.CurrentBranch()
		assert.True(t, writable)
		assert.Equal(t, model.DefaultBranch, branch)
	})
}

func TestAfterCommitWritable(t *testing.T) {
	st, _ := setupStore(t, WithAfterCommit(AfterCommitWritable))
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("1")))
	s0, err := st.Commit(ctx, "one")
	require.NoError(t, err)

	require.NoError(t, st.Set(ctx, "k", []byte("2")))
	s1, err := st.Commit(ctx, "two")
	require.NoError(t, err)
	assert.NotEqual(t, s0, s1)
	assert.Equal(t, model.BranchVersion(model.DefaultBranch), st.CurrentVersion())
}

func TestCheckoutDiscardsPendingChanges(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "pending", []byte("x")))
	require.NoError(t, st.Checkout(ctx, model.BranchVersion(model.DefaultBranch), Writable()))
	exists, err := st.Exists(ctx, "pending")
	require.NoError(t, err)
	assert.False(t, exists)

	err = st.Checkout(ctx, model.BranchVersion("nowhere"))
	assert.True(t, errors.Is(err, status.ErrNotFound))
	err = st.Checkout(ctx, model.TagVersion("v1"), Writable())
	assert.True(t, errors.Is(err, status.ErrInvalidRef))

	// a failed checkout keeps the active session
	branch, writable := st.CurrentBranch()
	assert.True(t, writable)
	assert.Equal(t, model.DefaultBranch, branch)
}

func TestBranchesAndTags(t *testing.T) {
	st, _ := setupStore(t, WithAfterCommit(AfterCommitWritable))
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("main")))
	s0, err := st.Commit(ctx, "on main")
	require.NoError(t, err)

	id, err := st.NewBranch(ctx, "dev", model.VersionRef{})
	require.NoError(t, err)
	assert.Equal(t, s0, id)
	_, err = st.NewBranch(ctx, "dev", model.BranchVersion(model.DefaultBranch))
	assert.True(t, errors.Is(err, status.ErrBranchExists))

	require.NoError(t, st.Tag(ctx, "v1", s0))
	assert.True(t, errors.Is(st.Tag(ctx, "v1", s0), status.ErrTagExists))

	require.NoError(t, st.Checkout(ctx, model.BranchVersion("dev"), Writable()))
	require.NoError(t, st.Set(ctx, "k", []byte("dev")))
	_, err = st.Commit(ctx, "on dev")
	require.NoError(t, err)

	require.NoError(t, st.Checkout(ctx, model.VersionRef{Name: "v1"}))
	value, _, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "main", string(value))

	branches, err := st.ListBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"dev", "main"}, branches)
	tags, err := st.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, tags)
}

func TestDeleteBranchAndPrune(t *testing.T) {
	st, repo := setupStore(t, WithAfterCommit(AfterCommitWritable))
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("main")))
	_, err := st.Commit(ctx, "on main")
	require.NoError(t, err)
	_, err = st.NewBranch(ctx, "dev", model.VersionRef{})
	require.NoError(t, err)

	require.NoError(t, st.Checkout(ctx, model.BranchVersion("dev"), Writable()))
	require.NoError(t, st.Set(ctx, "k", []byte("dev only")))
	require.NoError(t, st.Set(ctx, "scratch", []byte("dev only too")))
	_, err = st.Commit(ctx, "on dev")
	require.NoError(t, err)
	assert.True(t, errors.Is(st.DeleteBranch(ctx, "dev"), status.ErrInvalidRef), "the current branch is not deleted")

	// another store still writing on dev
	other, err := New(ctx, repo, WithBranch("dev"))
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, st.Checkout(ctx, model.BranchVersion(model.DefaultBranch), Writable()))
	assert.True(t, errors.Is(st.DeleteBranch(ctx, model.DefaultBranch), status.ErrInvalidRef))
	assert.True(t, errors.Is(st.DeleteBranch(ctx, "missing"), status.ErrNotFound))
	require.NoError(t, st.DeleteBranch(ctx, "dev"))

	branches, err := st.ListBranches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{model.DefaultBranch}, branches)

	require.NoError(t, other.Set(ctx, "k", []byte("late")))
	_, err = other.Commit(ctx, "too late")
	assert.True(t, errors.Is(err, status.ErrConflict))
	require.NoError(t, other.Close())

	// the content of dev, and the upload of the rejected commit
	removed, err := st.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	removed, err = st.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	value, found, err := st.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "main", string(value))
}

func TestPruneKeepsTheActiveSnapshot(t *testing.T) {
	st, _ := setupStore(t, WithAfterCommit(AfterCommitWritable))
	ctx := context.Background()

	_, err := st.NewBranch(ctx, "dev", model.VersionRef{})
	require.NoError(t, err)
	require.NoError(t, st.Checkout(ctx, model.BranchVersion("dev"), Writable()))
	require.NoError(t, st.Set(ctx, "k", []byte("dev")))
	id, err := st.Commit(ctx, "on dev")
	require.NoError(t, err)

	require.NoError(t, st.Checkout(ctx, model.SnapshotVersion(id)))
	require.NoError(t, st.DeleteBranch(ctx, "dev"))

	removed, err := st.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
	value, _, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "dev", string(value))
}

func TestReset(t *testing.T) {
	st, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("x")))
	assert.True(t, st.HasUncommittedChanges())
	require.NoError(t, st.Reset())
	assert.False(t, st.HasUncommittedChanges())
	_, found, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReadOnlyConstruction(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	st, err := New(ctx, repo, WithVersion(model.BranchVersion(model.DefaultBranch)))
	require.NoError(t, err)
	defer st.Close()
	_, writable := st.CurrentBranch()
	assert.False(t, writable)
	assert.True(t, errors.Is(st.Set(ctx, "k", nil), status.ErrReadOnlySession))

	_, err = New(ctx, repo, WithBranch("missing"))
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	st, _ := setupStore(t, WithMetrics(reg))
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "k", []byte("v")))
	_, _, _ = st.Get(ctx, "k")
	_, _, _ = st.Get(ctx, "absent")
	_, _, _ = st.Get(ctx, "/invalid")

	assert.Equal(t, float64(1), testutil.ToFloat64(st.metrics.ops.WithLabelValues("set", outcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(st.metrics.ops.WithLabelValues("get", outcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(st.metrics.ops.WithLabelValues("get", outcomeAbsent)))
	assert.Equal(t, float64(1), testutil.ToFloat64(st.metrics.ops.WithLabelValues("get", outcomeError)))
	assert.Equal(t, float64(1), testutil.ToFloat64(st.metrics.sessions.WithLabelValues("writable")))

	// a second store on the same registry shares the collectors
	other, _ := setupStore(t, WithMetrics(reg))
	assert.Same(t, st.metrics.ops, other.metrics.ops)
	assert.Equal(t, float64(2), testutil.ToFloat64(st.metrics.sessions.WithLabelValues("writable")))
}

func TestMetricsRegistrationConflict(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Number of store operations, by operation and outcome.",
	}, []string{"operation"})))

	_, err := New(context.Background(), setupRepo(t), WithMetrics(reg))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrEngine))
}
