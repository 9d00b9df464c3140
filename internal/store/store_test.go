package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PJI-Apps/Intake-Reports/internal/model"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fastOptions() Options {
	d := []time.Duration{0, time.Millisecond, time.Millisecond}
	return Options{ResolveDelays: d, ReadDelays: d}
}

func TestSheetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tb := model.NewTable("Name", "Stage")
	tb.AppendRow("Ann", "New Lead")
	tb.Rows = append(tb.Rows, []string{"Bob"})

	v1, err := s.WriteSheet(ctx, "Leads_PNCs_Master", tb)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	got, err := s.ReadSheet(ctx, "Leads_PNCs_Master")
	require.NoError(t, err)
	want := [][]string{{"Ann", "New Lead"}, {"Bob", ""}}
	if diff := cmp.Diff(want, got.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	// 覆盖写：旧行全部清掉
	v2, err := s.WriteSheet(ctx, "Leads_PNCs_Master", model.NewTable("Name", "Stage"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)
	got, err = s.ReadSheet(ctx, "Leads_PNCs_Master")
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Stage"}, got.Headers)
	assert.Equal(t, 0, got.Len())

	_, err = s.ReadSheet(ctx, "missing")
	assert.ErrorIs(t, err, ErrSheetNotFound)

	infos, err := s.ListSheets(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2, infos[0].Columns)
}

func TestAdapterCreatesMissingTableWithEmptyHeaders(t *testing.T) {
	s := newTestStore(t)
	a := NewAdapter(s, fastOptions())
	ctx := context.Background()

	tb, err := a.Read(ctx, schema.NCL)
	require.NoError(t, err)
	assert.Equal(t, 0, tb.Len())
	assert.Equal(t, schema.MustLookup(schema.NCL).EmptyHeaders(), tb.Headers)

	exists, err := s.SheetExists(ctx, "New_Client_List_Master")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAdapterPrefersLegacyName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	legacy := model.NewTable("Name", "Total Calls")
	legacy.AppendRow("Earl", "4")
	_, err := s.WriteSheet(ctx, "Zoom_Calls", legacy)
	require.NoError(t, err)

	a := NewAdapter(s, fastOptions())
	name, err := a.Resolve(ctx, schema.Calls)
	require.NoError(t, err)
	assert.Equal(t, "Zoom_Calls", name)

	tb, err := a.Read(ctx, schema.Calls)
	require.NoError(t, err)
	assert.Equal(t, "4", tb.Value(0, "Total Calls"))

	_, err = a.Resolve(ctx, schema.Key("NOPE"))
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestAdapterCacheAndVersion(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := fastOptions()
	opts.Now = func() time.Time { return now }
	a := NewAdapter(s, opts)
	ctx := context.Background()

	tb := model.NewTable("Name")
	tb.AppendRow("Ann")
	require.NoError(t, a.Write(ctx, schema.Leads, tb))
	assert.Equal(t, int64(1), a.Version())

	first, err := a.Read(ctx, schema.Leads)
	require.NoError(t, err)
	first.Rows[0][0] = "mutated"

	// 调用方修改副本不影响缓存
	second, err := a.Read(ctx, schema.Leads)
	require.NoError(t, err)
	assert.Equal(t, "Ann", second.Value(0, "Name"))

	// 绕过适配器直接写库：TTL 内仍命中缓存，过期后读到新数据
	direct := model.NewTable("Name")
	direct.AppendRow("Zed")
	_, err = s.WriteSheet(ctx, "Leads_PNCs_Master", direct)
	require.NoError(t, err)

	cached, err := a.Read(ctx, schema.Leads)
	require.NoError(t, err)
	assert.Equal(t, "Ann", cached.Value(0, "Name"))

	now = now.Add(DefaultCacheTTL + time.Second)
	fresh, err := a.Read(ctx, schema.Leads)
	require.NoError(t, err)
	assert.Equal(t, "Zed", fresh.Value(0, "Name"))
}

type flakyBackend struct {
	Backend
	readFailures int
	reads        int
}

func (f *flakyBackend) ReadSheet(ctx context.Context, name string) (*model.Table, error) {
	f.reads++
	if f.reads <= f.readFailures {
		return nil, sqlite3.Error{Code: sqlite3.ErrBusy}
	}
	return f.Backend.ReadSheet(ctx, name)
}

func TestAdapterRetriesTransientErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fb := &flakyBackend{Backend: s, readFailures: 2}
	a := NewAdapter(fb, fastOptions())
	_, err := a.Read(ctx, schema.Init)
	require.NoError(t, err)
	assert.Equal(t, 3, fb.reads)

	fb = &flakyBackend{Backend: s, readFailures: 10}
	a = NewAdapter(fb, fastOptions())
	_, err = a.Read(ctx, schema.Init)
	require.Error(t, err)

	var te *TransientStoreError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, "read", te.Op)
	assert.True(t, IsTransient(err))
	assert.False(t, IsTransient(errors.New("boom")))
}

func TestAdapterRetryStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	fb := &flakyBackend{Backend: s, readFailures: 10}
	a := NewAdapter(fb, Options{ReadDelays: []time.Duration{0, time.Hour}})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := a.Resolve(ctx, schema.Disc)
	require.NoError(t, err)
	cancel()

	_, err = a.Read(ctx, schema.Disc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClean(t *testing.T) {
	tb := &model.Table{
		Headers: []string{"Name", "Unnamed: 1", "Stage"},
		Rows: [][]string{
			{"Ann", "junk", "New"},
			{"", "junk", " "},
			{"Bob"},
		},
	}
	out := Clean(tb)
	assert.Equal(t, []string{"Name", "Stage"}, out.Headers)
	assert.Equal(t, [][]string{{"Ann", "New"}, {"Bob", ""}}, out.Rows)
}

func TestUploadLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateUploadLog(ctx, UploadLog{Filename: "calls.csv", Kind: "CALLS", BatchID: "batch_1_1000", Replace: true})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, s.FinishUploadLog(ctx, id, "imported", 12, ""))

	logs, err := s.ListUploadLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "imported", logs[0].Status)
	assert.Equal(t, 12, logs[0].ImportedRows)
	assert.True(t, logs[0].Replace)
	assert.NotNil(t, logs[0].CompletedAt)
}
