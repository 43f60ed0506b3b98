package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/options"
)

func records(from, to int) []model.Record {
	var out []model.Record
	for i := from; i <= to; i++ {
		out = append(out, model.Record{
			LogicalTime: model.LogicalTime(i),
			Kind:        model.KindCommand,
			VehicleID:   "boat-01",
			At:          time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
			Payload:     model.Command{Seq: uint64(i), VehicleID: "boat-01", Type: model.CommandPing},
		})
	}
	return out
}

func readLines(t *testing.T, path string) []model.LogicalTime {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	var out []model.LogicalTime
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		rec, err := decodeRecord(sc.Bytes())
		require.NoError(t, err)
		out = append(out, rec.LogicalTime)
	}
	return out
}

func TestFileSinkAppendsInOrderAndSkipsRetried(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	f, err := NewFile(FileOptions{Path: path, MaxSizeMB: 10})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.Append(ctx, records(1, 3)))
	// A retry that overlaps what was already written.
	require.NoError(t, f.Append(ctx, records(2, 5)))
	require.NoError(t, f.Close())

	assert.Equal(t, []model.LogicalTime{1, 2, 3, 4, 5}, readLines(t, path))
}

func TestFileSinkResumes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	f, err := NewFile(FileOptions{Path: path, MaxSizeMB: 10})
	require.NoError(t, err)
	require.NoError(t, f.Append(context.Background(), records(1, 9)))
	require.NoError(t, f.Close())

	f, err = NewFile(FileOptions{Path: path, MaxSizeMB: 10})
	require.NoError(t, err)
	defer f.Close()
	last, err := f.LastLogicalTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.LogicalTime(9), last)
}

func TestPebbleSinkRangeAndResume(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenPebble(dir)
	require.NoError(t, err)

	ctx := context.Background()
	last, err := p.LastLogicalTime(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	require.NoError(t, p.Append(ctx, records(1, 300)))
	require.NoError(t, p.Append(ctx, records(250, 300)))

	got, err := p.Range(ctx, 100, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, model.LogicalTime(101), got[0].LogicalTime)
	assert.Equal(t, model.LogicalTime(105), got[4].LogicalTime)

	var cmd model.Command
	require.NoError(t, json.Unmarshal(got[0].Payload.(json.RawMessage), &cmd))
	assert.Equal(t, uint64(101), cmd.Seq)

	got, err = p.Range(ctx, 298, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	require.NoError(t, p.Close())

	p, err = OpenPebble(dir)
	require.NoError(t, err)
	defer p.Close()
	last, err = p.LastLogicalTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.LogicalTime(300), last)
}

func TestObjectKey(t *testing.T) {
	key := objectKey("audit", records(7, 9))
	assert.Equal(t, "audit/2026/03/04/00000000000000000007-00000000000000000009.jsonl", key)
}

func TestEncodeLines(t *testing.T) {
	b, err := encodeLines(records(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(b))
}

func countLines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestUnwritten(t *testing.T) {
	recs := records(1, 5)
	assert.Len(t, unwritten(recs, 0), 5)
	assert.Len(t, unwritten(recs, 3), 2)
	assert.Empty(t, unwritten(recs, 5))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := Open(ctx, &options.AuditOptions{Sink: options.AuditSinkNone}, nil)
	require.NoError(t, err)
	assert.IsType(t, Discard{}, s)
	assert.NoError(t, closeFn())

	audit := options.NewAuditOptions()
	audit.Sink = options.AuditSinkPebble
	audit.PebbleDir = t.TempDir()
	s, closeFn, err = Open(ctx, audit, nil)
	require.NoError(t, err)
	assert.Implements(t, (*Reader)(nil), s)
	assert.NoError(t, closeFn())

	_, _, err = Open(ctx, &options.AuditOptions{Sink: "tape"}, nil)
	assert.Error(t, err)
}
