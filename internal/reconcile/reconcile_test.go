package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
	"github.com/PJI-Apps/Intake-Reports/internal/store"
)

// memStore 内存版 TableStore
type memStore struct {
	mu        sync.Mutex
	tables    map[schema.Key]*model.Table
	failWrite map[schema.Key]bool
}

func newMemStore() *memStore {
	return &memStore{tables: map[schema.Key]*model.Table{}, failWrite: map[schema.Key]bool{}}
}

func (m *memStore) Read(_ context.Context, key schema.Key) (*model.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[key]; ok {
		return t.Clone(), nil
	}
	return model.NewTable(schema.MustLookup(key).EmptyHeaders()...), nil
}

func (m *memStore) Write(_ context.Context, key schema.Key, t *model.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[key] {
		return errors.New("disk full")
	}
	m.tables[key] = t.Clone()
	return nil
}

func leadsTable(rows ...[]string) *model.Table {
	t := model.NewTable("Email", "Matter ID", "Stage", "First Name", schema.ColBatchID)
	for _, r := range rows {
		t.AppendRow(r...)
	}
	return t
}

func TestCompositeKeyReplaceKeepsNewValues(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	res := r.Merge(ctx, schema.Leads, leadsTable([]string{"a@x.com", "M1", "New Lead", "Old", "b1"}), MergeRequest{})
	require.True(t, res.OK())

	res = r.Merge(ctx, schema.Leads, leadsTable(
		[]string{"a@x.com", "M1", "New Lead", "Corrected", "b2"},
		[]string{"c@x.com", "M2", "New Lead", "Other", "b2"},
	), MergeRequest{Replace: true})
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 2, res.Total)

	got, _ := ms.Read(ctx, schema.Leads)
	matches := 0
	for i := range got.Rows {
		if got.Value(i, "Email") == "a@x.com" && got.Value(i, "Matter ID") == "M1" && got.Value(i, "Stage") == "New Lead" {
			matches++
			assert.Equal(t, "Corrected", got.Value(i, "First Name"))
		}
	}
	assert.Equal(t, 1, matches)
}

func TestCompositeKeyMissingColumnsAppends(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	noKey := model.NewTable("First Name")
	noKey.AppendRow("Ann")
	require.True(t, r.Merge(ctx, schema.Leads, noKey, MergeRequest{}).OK())

	res := r.Merge(ctx, schema.Leads, noKey, MergeRequest{Replace: true})
	require.True(t, res.OK())
	assert.Equal(t, 0, res.Removed)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "composite key")
}

func TestReplacePeriod(t *testing.T) {
	existing := model.NewTable(schema.ColName, schema.ColMonthYear)
	existing.AppendRow("Earl", "2025-01")
	existing.AppendRow("Earl", "2025-02")
	incoming := model.NewTable(schema.ColName, schema.ColMonthYear)
	incoming.AppendRow("Earl", "2025-01")

	out, removed := ReplacePeriod(existing, incoming, "2025-01")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"2025-02", "2025-01"}, out.Column(schema.ColMonthYear))
}

func TestReplaceRange(t *testing.T) {
	existing := model.NewTable(schema.ColFirstName, schema.ColICDate)
	existing.AppendRow("in", "01/10/2025 9:00 AM")
	existing.AppendRow("edge", "January 31, 2025 at 5:00pm EST")
	existing.AppendRow("out", "02/01/2025")
	existing.AppendRow("junk", "someday")
	incoming := model.NewTable(schema.ColFirstName, schema.ColICDate)
	incoming.AppendRow("new", "01/15/2025")

	jan := dates.NewRange(dates.Date(2025, 1, 1), dates.Date(2025, 1, 31))
	out, removed, warn := ReplaceRange(existing, incoming, schema.ColICDate, jan)
	assert.Nil(t, warn)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"out", "junk", "new"}, out.Column(schema.ColFirstName))

	bad := model.NewTable(schema.ColNCLDate)
	bad.AppendRow("soon")
	_, removed, warn = ReplaceRange(bad, model.NewTable(schema.ColNCLDate), schema.ColNCLDate, jan)
	assert.Equal(t, 0, removed)
	require.NotNil(t, warn)
	assert.Equal(t, 1, warn.Values)
}

func TestDeleteBatchIsIdempotent(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	require.True(t, r.Merge(ctx, schema.Leads, leadsTable(
		[]string{"a@x.com", "M1", "New Lead", "A", "b1"},
		[]string{"b@x.com", "M2", "New Lead", "B", "b2"},
	), MergeRequest{}).OK())
	consults := model.NewTable(schema.ColFirstName, schema.ColBatchID)
	consults.AppendRow("C", "b1")
	require.True(t, r.Merge(ctx, schema.Init, consults, MergeRequest{}).OK())

	first := r.DeleteBatch(ctx, "b1")
	removed, _, failed := Summary(first)
	assert.Equal(t, 2, removed)
	assert.Empty(t, failed)

	second := r.DeleteBatch(ctx, "b1")
	removed, _, failed = Summary(second)
	assert.Equal(t, 0, removed)
	assert.Empty(t, failed)

	batches, err := r.ListBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[schema.Key]int{"b2": {schema.Leads: 1}}, batches)
	assert.Equal(t, []string{"b2"}, BatchIDs(batches))
}

func TestWipeAllPreservesHeaders(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	custom := model.NewTable("Custom A", "Custom B")
	custom.AppendRow("1", "2")
	ms.tables[schema.Disc] = custom

	results := r.WipeAll(ctx)
	require.Len(t, results, 5)
	for _, res := range results {
		require.True(t, res.OK(), res.Error)
	}

	got, _ := ms.Read(ctx, schema.Disc)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"Custom A", "Custom B"}, got.Headers)

	got, _ = ms.Read(ctx, schema.Calls)
	assert.Equal(t, schema.MustLookup(schema.Calls).EmptyHeaders(), got.Headers)
}

func TestRepairOrphansLeavesRealIDs(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	ms.tables[schema.NCL] = &model.Table{
		Headers: []string{schema.ColFirstName, schema.ColBatchID},
		Rows: [][]string{
			{"a", "batch_1_1111"},
			{"b", ""},
			{"c", "NaT"},
			{"d", "2024-03-01 00:00:00"},
			{"e", "nan"},
		},
	}
	// 没有 __batch_id 列的历史表
	legacy := model.NewTable(schema.ColFirstName)
	legacy.AppendRow("x")
	ms.tables[schema.Disc] = legacy

	results := r.RepairOrphans(ctx, "batch_fix_9999")
	_, updated, failed := Summary(results)
	assert.Equal(t, 5, updated)
	assert.Empty(t, failed)

	got, _ := ms.Read(ctx, schema.NCL)
	assert.Equal(t, []string{"batch_1_1111", "batch_fix_9999", "batch_fix_9999", "batch_fix_9999", "batch_fix_9999"},
		got.Column(schema.ColBatchID))

	got, _ = ms.Read(ctx, schema.Disc)
	assert.Equal(t, "batch_fix_9999", got.Value(0, schema.ColBatchID))
}

func TestDedupeLeadsKeepsLast(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	ms.tables[schema.Leads] = leadsTable(
		[]string{"a@x.com", "M1", "New Lead", "first", "b1"},
		[]string{"b@x.com", "M2", "New Lead", "keep", "b1"},
		[]string{"a@x.com", "M1", "New Lead", "last", "b2"},
	)
	res := r.DedupeLeads(ctx)
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Removed)

	got, _ := ms.Read(ctx, schema.Leads)
	assert.Equal(t, []string{"keep", "last"}, got.Column("First Name"))
}

func TestPurgeMonthAndPartialFailure(t *testing.T) {
	ms := newMemStore()
	r := New(ms, nil)
	ctx := context.Background()

	calls := model.NewTable(schema.ColName, schema.ColMonthYear, schema.ColBatchID)
	calls.AppendRow("Earl", "2025-01", "b1")
	calls.AppendRow("Earl", "2025-02", "b1")
	ms.tables[schema.Calls] = calls
	ncl := model.NewTable(schema.ColFirstName, schema.ColBatchID)
	ncl.AppendRow("x", "b1")
	ms.tables[schema.NCL] = ncl

	res := r.PurgeMonth(ctx, "2025-01")
	require.True(t, res.OK())
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 0, r.PurgeMonth(ctx, "2025-01").Removed)

	// NCL 写入失败不影响 CALLS
	ms.failWrite[schema.NCL] = true
	results := r.DeleteBatch(ctx, "b1")
	removed, _, failed := Summary(results)
	assert.Equal(t, []schema.Key{schema.NCL}, failed)
	assert.Equal(t, 1, removed)
	got, _ := ms.Read(ctx, schema.Calls)
	assert.Equal(t, 0, got.Len())
}

func TestWithSQLiteAdapter(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	defer s.Close()

	r := New(store.NewAdapter(s, store.Options{}), nil)
	ctx := context.Background()

	require.True(t, r.Merge(ctx, schema.Leads, leadsTable([]string{"a@x.com", "M1", "New Lead", "A", "b1"}), MergeRequest{}).OK())
	results := r.WipeAll(ctx)
	_, _, failed := Summary(results)
	assert.Empty(t, failed)

	a := store.NewAdapter(s, store.Options{})
	got, err := a.Read(ctx, schema.Leads)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
	assert.Equal(t, []string{"Email", "Matter ID", "Stage", "First Name", schema.ColBatchID}, got.Headers)
}
