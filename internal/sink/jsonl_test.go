package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lookup_engine/internal/model"
)

func TestJSONLSink_AppendsOneLinePerResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.jsonl")
	s, err := OpenJSONLSink(path)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), model.VerificationResult{
		ID:         "r1",
		Identifier: "+8613800001001",
		Outcome:    model.ResultFound,
		Profile:    &model.Profile{DisplayName: "张三"},
		AtMs:       1000,
	}))
	require.NoError(t, s.Write(context.Background(), model.VerificationResult{
		ID:         "r2",
		Identifier: "+8613800001002",
		Outcome:    model.ResultNotFound,
		AtMs:       2000,
	}))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []model.VerificationResult
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r model.VerificationResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		lines = append(lines, r)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, lines, 2)
	assert.Equal(t, "+8613800001001", lines[0].Identifier)
	require.NotNil(t, lines[0].Profile)
	assert.Equal(t, "张三", lines[0].Profile.DisplayName)
	assert.Equal(t, model.ResultNotFound, lines[1].Outcome)
}

func TestJSONLSink_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")

	s, err := OpenJSONLSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), model.VerificationResult{ID: "r1", Identifier: "+111111111", Outcome: model.ResultFound}))
	require.NoError(t, s.Close())

	s, err = OpenJSONLSink(path)
	require.NoError(t, err)
	require.NoError(t, s.Write(context.Background(), model.VerificationResult{ID: "r2", Identifier: "+222222222", Outcome: model.ResultFound}))
	require.NoError(t, s.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "r1")
	assert.Contains(t, string(b), "r2")
}

type failSink struct{ err error }

func (f failSink) Write(context.Context, model.VerificationResult) error { return f.err }

type countSink struct{ n int }

func (c *countSink) Write(context.Context, model.VerificationResult) error {
	c.n++
	return nil
}

func TestMulti_KeepsWritingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	counter := &countSink{}
	m := Multi{failSink{err: boom}, counter}

	err := m.Write(context.Background(), model.VerificationResult{Identifier: "+111111111"})
	assert.ErrorIs(t, err, boom, "返回第一个错误")
	assert.Equal(t, 1, counter.n, "后续 sink 仍被写入")
}
