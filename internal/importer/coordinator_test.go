package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/PJI-Apps/Intake-Reports/internal/dates"
	"github.com/PJI-Apps/Intake-Reports/internal/parser"
	"github.com/PJI-Apps/Intake-Reports/internal/reconcile"
	"github.com/PJI-Apps/Intake-Reports/internal/schema"
	"github.com/PJI-Apps/Intake-Reports/internal/session"
	"github.com/PJI-Apps/Intake-Reports/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	store   *store.Store
	adapter *store.Adapter
	coord   *Coordinator
	session *session.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "intake.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	a := store.NewAdapter(s, store.Options{})
	now := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	return &fixture{
		store:   s,
		adapter: a,
		coord: NewCoordinator(reconcile.New(a, nil),
			WithUploadLogger(s),
			WithClock(func() time.Time { return now })),
		session: session.NewManager(nil, nil).Ensure(""),
	}
}

const callsCSV = `Name,Total Calls,Completed Calls,Outgoing,Received,Forwarded to Voicemail,Answered by Other,Missed,Avg Call Time,Total Call Time,Total Hold Time
Earl,10,8,4,6,0,1,1,00:02:00,00:16:00,00:00:30
Random Person,99,99,0,99,0,0,0,00:10:00,16:30:00,00:00:00
`

var january = dates.NewRange(dates.Date(2025, 1, 1), dates.Date(2025, 1, 31))

func TestCallsUploadEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.coord.Run(ctx, UploadRequest{
		Session:  f.session,
		Kind:     schema.Calls,
		Filename: "zoom_calls_jan.csv",
		Data:     []byte(callsCSV),
		Period:   "2025-01",
	})
	require.NoError(t, err)
	require.Len(t, report.Tables, 1)
	assert.Equal(t, "imported", report.Tables[0].Status)
	assert.Equal(t, 1, report.ImportedRows)
	assert.Equal(t, 1, report.Tables[0].DroppedRows)
	assert.Equal(t, f.session.BatchID(), report.BatchID)

	calls, err := f.adapter.Read(ctx, schema.Calls)
	require.NoError(t, err)
	require.Equal(t, 1, calls.Len())
	assert.Equal(t, "Earl", calls.Value(0, schema.ColName))
	assert.Equal(t, "2025-01", calls.Value(0, schema.ColMonthYear))
	assert.Equal(t, "10", calls.Value(0, schema.ColTotalCalls))
	assert.Equal(t, "00:02:00", calls.Value(0, schema.ColAvgCallTime))
	assert.Equal(t, "2025-01-01", calls.Value(0, schema.ColBatchStart))
	assert.Equal(t, "2025-01-31", calls.Value(0, schema.ColBatchEnd))
	assert.Equal(t, report.BatchID, calls.Value(0, schema.ColBatchID))

	logs, err := f.store.ListUploadLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "imported", logs[0].Status)
	assert.Equal(t, f.session.ID, logs[0].SessionID)
}

func TestLeadsReplaceEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := "Email,Matter ID,Stage,First Name,Date Created\na@x.com,M1,New Lead,Old,01/05/2025\n"
	second := "Email,Matter ID,Stage,First Name,Date Created\na@x.com,M1,New Lead,Corrected,01/06/2025\nb@x.com,M2,New Lead,Other,01/07/2025\n"

	_, err := f.coord.Run(ctx, UploadRequest{
		Session: f.session, Kind: schema.Leads, Filename: "leads.csv", Data: []byte(first), Range: january,
	})
	require.NoError(t, err)

	report, err := f.coord.Run(ctx, UploadRequest{
		Session: f.session, Kind: schema.Leads, Filename: "leads.csv", Data: []byte(second), Range: january, Replace: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.ImportedRows)

	leads, err := f.adapter.Read(ctx, schema.Leads)
	require.NoError(t, err)
	assert.Equal(t, 2, leads.Len())
	matches := 0
	for i := range leads.Rows {
		if leads.Value(i, "Email") == "a@x.com" && leads.Value(i, "Matter ID") == "M1" && leads.Value(i, "Stage") == "New Lead" {
			matches++
			assert.Equal(t, "Corrected", leads.Value(i, "First Name"))
		}
	}
	assert.Equal(t, 1, matches)
}

func TestConversionUploadFiltersToRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	csv := "First Name,Initial Consultation With Pji Law,Sub Status\n" +
		"in,01/10/2025 9:00 AM,\n" +
		"out,02/10/2025 9:00 AM,\n" +
		"junk,someday,\n"
	report, err := f.coord.Run(ctx, UploadRequest{
		Session: f.session, Kind: schema.Init, Filename: "ic.csv", Data: []byte(csv), Range: january,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImportedRows)
	assert.Equal(t, 2, report.Tables[0].DroppedRows)

	ic, err := f.adapter.Read(ctx, schema.Init)
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, ic.Column("First Name"))
}

func TestDuplicateUploadRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := UploadRequest{Session: f.session, Kind: schema.Calls, Filename: "calls.csv", Data: []byte(callsCSV), Period: "2025-01"}

	_, err := f.coord.Run(ctx, req)
	require.NoError(t, err)

	_, err = f.coord.Run(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateUpload)

	// 换成转化类上传：哈希集合互相独立
	assert.False(t, f.session.Seen(session.ConversionHashes, FileHash([]byte(callsCSV))))

	f.session.AllowReupload()
	_, err = f.coord.Run(ctx, req)
	require.NoError(t, err)

	calls, err := f.adapter.Read(ctx, schema.Calls)
	require.NoError(t, err)
	assert.Equal(t, 2, calls.Len())

	req.Replace = true
	_, err = f.coord.Run(ctx, req)
	require.NoError(t, err)
	calls, err = f.adapter.Read(ctx, schema.Calls)
	require.NoError(t, err)
	assert.Equal(t, 1, calls.Len())
}

func TestSchemaErrorLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.coord.Run(ctx, UploadRequest{
		Session:  f.session,
		Kind:     schema.Calls,
		Filename: "broken.csv",
		Data:     []byte("Name,Total Calls\nEarl,3\n"),
		Period:   "2025-01",
	})
	var se *parser.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Missing, schema.ColAvgCallTime)
	assert.Equal(t, []string{"Name", "Total Calls"}, se.Seen)
	require.NotNil(t, report)

	calls, err := f.adapter.Read(ctx, schema.Calls)
	require.NoError(t, err)
	assert.Equal(t, 0, calls.Len())
	assert.False(t, f.session.Seen(session.CallHashes, FileHash([]byte("Name,Total Calls\nEarl,3\n"))))

	logs, err := f.store.ListUploadLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Status)
	assert.True(t, strings.Contains(logs[0].ErrorMessage, "missing columns"))
}

func TestInvalidRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []UploadRequest{
		{Kind: schema.Calls, Filename: "c.csv", Data: []byte(callsCSV), Period: "January"},
		{Kind: schema.NCL, Filename: "n.csv", Data: []byte("a\n1\n")},
		{Kind: schema.Key("NOPE"), Filename: "x.csv", Data: []byte("a\n1\n"), Range: january},
		{Kind: schema.Leads, Filename: "l.csv", Range: january},
	}
	for _, req := range cases {
		_, err := f.coord.Run(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "kind=%s", req.Kind)
	}
}

func TestProgressEvents(t *testing.T) {
	f := newFixture(t)

	var types []string
	for evt := range f.coord.Import(context.Background(), UploadRequest{
		Kind: schema.NCL, Filename: "ncl.csv", Range: january,
		Data: []byte("Date we had BOTH the signed CLA and full payment,Responsible Attorney\n01/03/2025,CW\n"),
	}) {
		types = append(types, evt.Type)
		if evt.Type == "done" {
			r, ok := evt.Data.(*parser.ImportReport)
			require.True(t, ok)
			assert.True(t, strings.HasPrefix(r.BatchID, "batch_"))
			assert.Equal(t, parser.FormatCSV, r.Format)
		}
	}
	assert.Equal(t, []string{"start", "info", "info", "done"}, types)
}

func TestAllRowsFilteredIsSkipped(t *testing.T) {
	f := newFixture(t)

	report, err := f.coord.Run(context.Background(), UploadRequest{
		Session:  f.session,
		Kind:     schema.Calls,
		Filename: "nobody.csv",
		Data:     []byte(strings.SplitN(callsCSV, "\n", 2)[0] + "\nStranger,1,1,0,1,0,0,0,00:01:00,00:01:00,00:00:00\n"),
		Period:   "2025-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "skipped", report.Tables[0].Status)
	assert.Equal(t, 0, report.ImportedRows)
}

func TestDetectKind(t *testing.T) {
	kind, err := DetectKind("calls.csv", []byte(callsCSV))
	require.NoError(t, err)
	assert.Equal(t, schema.Calls, kind)

	_, err = DetectKind("x.csv", []byte("foo,bar\n1,2\n"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSessionlessUploadLeavesSessionBatchAlone(t *testing.T) {
	f := newFixture(t)
	before := f.session.BatchID()

	report, err := f.coord.Run(context.Background(), UploadRequest{
		Kind: schema.Calls, Filename: "calls.csv", Data: []byte(callsCSV), Period: "2025-01",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(report.BatchID, "batch_"))
	assert.Equal(t, before, f.session.BatchID())

	calls, err := f.adapter.Read(context.Background(), schema.Calls)
	require.NoError(t, err)
	assert.Equal(t, report.BatchID, calls.Value(0, schema.ColBatchID))
}
