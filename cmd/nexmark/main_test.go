package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabricekabongo/nexmark/event"
	"github.com/fabricekabongo/nexmark/internal/hashroute"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func lines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestGenerateJSONLines(t *testing.T) {
	out, err := run(t, "generate", "--number", "5", "--no-wait")
	require.NoError(t, err)
	ls := lines(out)
	require.Len(t, ls, 5)

	first, err := event.Resolve(ls[0])
	require.NoError(t, err)
	assert.True(t, first.IsPerson(), "first event is %s", first.Kind())
	for i, l := range ls {
		_, err := event.Resolve(l)
		assert.NoError(t, err, "line %d", i)
	}
}

func TestGenerateKindFilter(t *testing.T) {
	out, err := run(t, "generate", "--type", "bid", "--number", "7", "--no-wait")
	require.NoError(t, err)
	ls := lines(out)
	require.Len(t, ls, 7)
	for i, l := range ls {
		_, err := event.DecodeBid([]byte(l))
		assert.NoError(t, err, "line %d", i)
	}
}

func TestGenerateDebugFormat(t *testing.T) {
	for _, format := range []string{"debug", "rust"} {
		out, err := run(t, "generate", "--number", "1", "--no-wait", "--format", format)
		require.NoError(t, err, format)
		assert.True(t, strings.HasPrefix(out, "Person { id: "), "%s: %q", format, out)
	}
}

func TestGenerateZeroNumber(t *testing.T) {
	out, err := run(t, "generate", "--number", "0", "--no-wait")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerateRejectsBadFlags(t *testing.T) {
	cases := [][]string{
		{"generate", "--type", "lot", "--number", "1"},
		{"generate", "--format", "xml", "--number", "1"},
		{"generate", "--sink", "nats", "--number", "1", "--no-wait"},
	}
	for _, args := range cases {
		_, err := run(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestSchemaSingleKind(t *testing.T) {
	out, err := run(t, "schema", "--type", "bid")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok, "schema has no properties: %s", out)
	for _, f := range event.Fields(event.KindBid) {
		assert.Contains(t, props, f)
	}
}

func TestSchemaAllKinds(t *testing.T) {
	out, err := run(t, "schema")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	for _, k := range event.Kinds {
		assert.Contains(t, doc, string(k))
	}
}

func TestRecordThenReplay(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")

	_, err := run(t, "record", "--number", "120", "--db", db)
	require.NoError(t, err)
	// recording the same stream again stores nothing new
	_, err = run(t, "record", "--number", "120", "--db", db)
	require.NoError(t, err)

	out, err := run(t, "replay", "--db", db)
	require.NoError(t, err)
	require.Len(t, lines(out), 120)

	gen, err := run(t, "generate", "--number", "120", "--no-wait")
	require.NoError(t, err)
	assert.Equal(t, gen, out, "replay does not match the generated stream")

	bids, err := run(t, "replay", "--db", db, "--type", "bid", "--number", "3", "--tagged")
	require.NoError(t, err)
	ls := lines(bids)
	require.Len(t, ls, 3)
	for _, l := range ls {
		ev, err := event.ParseTagged([]byte(l))
		require.NoError(t, err)
		assert.True(t, ev.IsBid(), "got %s", ev.Kind())
	}
}

func TestReplayPartitionsCoverTheLog(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")
	_, err := run(t, "record", "--number", "60", "--db", db)
	require.NoError(t, err)

	total := 0
	for p := 0; p < hashroute.PartitionCount; p++ {
		out, err := run(t, "replay", "--db", db, "--partition", strconv.Itoa(p))
		require.NoError(t, err)
		total += len(lines(out))
	}
	assert.Equal(t, 60, total)

	_, err = run(t, "replay", "--db", db, "--partition", strconv.Itoa(hashroute.PartitionCount))
	assert.Error(t, err)
}

func TestRecordRejectsNonPositiveNumber(t *testing.T) {
	db := filepath.Join(t.TempDir(), "events.db")
	_, err := run(t, "record", "--number", "0", "--db", db)
	assert.Error(t, err)
}

func TestBenchReportsRate(t *testing.T) {
	out, err := run(t, "bench", "--duration", "50ms", "--workers", "2")
	require.NoError(t, err)
	ls := lines(out)
	require.Len(t, ls, 2)
	assert.True(t, strings.HasPrefix(ls[0], "Generated "), ls[0])
	assert.Contains(t, ls[0], "events/sec")
	assert.Contains(t, ls[1], "with 2 generators")
}

func TestServeNeedsABridge(t *testing.T) {
	_, err := run(t, "serve")
	assert.Error(t, err)
}
