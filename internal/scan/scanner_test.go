package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
)

func numberedFiles(n int) []Scannable {
	files := make([]Scannable, n)
	for i := range files {
		files[i] = NewFile(fmt.Sprintf("content %d", i), fmt.Sprintf("file-%d", i))
	}
	return files
}

func TestScan_BatchesAndProgress(t *testing.T) {
	fc := &fakeClient{}
	cache := &fakeCache{}
	s := newTestScanner(fc, cache)

	files := numberedFiles(45)
	files = append(files, NewFile("", "undecodable-1"), NewFile("", "undecodable-2"))

	var progress []int
	results, err := s.Scan(context.Background(), files, func(n int) { progress = append(progress, n) }, 4)
	require.NoError(t, err)

	assert.Empty(t, results.Results)
	assert.Empty(t, results.Errors)
	assert.Equal(t, []int{20, 20, 5, 2}, progress)
	assert.Equal(t, 3, fc.calls)

	total := 0
	for _, b := range fc.batches {
		assert.LessOrEqual(t, len(b), client.MultiDocumentLimit)
		total += len(b)
	}
	assert.Equal(t, 45, total)
	assert.Equal(t, 1, cache.purges)
	assert.Equal(t, 1, cache.saves)
}

func TestScan_ProgressReportsZeroSkipped(t *testing.T) {
	var progress []int
	_, err := newTestScanner(&fakeClient{}, &fakeCache{}).Scan(context.Background(), numberedFiles(3), func(n int) { progress = append(progress, n) }, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, progress)
}

func TestScan_OnlyViolatingFilesProduceResults(t *testing.T) {
	fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
		out := cleanOutcome(docs)
		for i, d := range docs {
			if d.Filename == "leaky.env" {
				out.Results[i] = withBreaks(secret("AWS Keys", "AKIA123"))
			}
		}
		return out, nil
	}}
	cache := &fakeCache{}
	s := newTestScanner(fc, cache)

	files := []Scannable{NewFile("AWS_KEY=AKIA123", "leaky.env"), NewFile("hello", "clean.txt")}
	results, err := s.Scan(context.Background(), files, nil, 4)
	require.NoError(t, err)

	require.Len(t, results.Results, 1)
	assert.Empty(t, results.Errors)
	r := results.Results[0]
	assert.Equal(t, "leaky.env", r.Filename)
	assert.Equal(t, "AWS_KEY=AKIA123", r.Content)
	assert.Equal(t, FilemodeFile, r.Filemode)
	assert.Equal(t, 1, r.Scan.PolicyBreakCount)
	assert.Equal(t, []string{"AWS Keys - leaky.env"}, cache.found)
}

func TestScan_TransportErrorRecordsBatchError(t *testing.T) {
	fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
		return nil, errors.New("connection reset by peer")
	}}
	s := newTestScanner(fc, &fakeCache{})

	files := []Scannable{
		NewFile("a", "a.txt"),
		NewCommitFile("@@ -1 +1 @@\n+b\n", "b.txt", FilemodeModify),
	}
	results, err := s.Scan(context.Background(), files, nil, 4)
	require.NoError(t, err)

	assert.Empty(t, results.Results)
	require.Len(t, results.Errors, 1)
	assert.Equal(t, []FileRef{
		{Filename: "a.txt", Filemode: FilemodeFile},
		{Filename: "b.txt", Filemode: FilemodeModify},
	}, results.Errors[0].Files)
	assert.Equal(t, "connection reset by peer", results.Errors[0].Description)
}

func TestScan_ClientPanicRecordsBatchError(t *testing.T) {
	fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
		if docs[0].Filename == "file-2" {
			panic("decoder blew up")
		}
		return cleanOutcome(docs), nil
	}}
	cache := &fakeCache{}
	s := newTestScanner(fc, cache, WithBatchSize(2))

	results, err := s.Scan(context.Background(), numberedFiles(4), nil, 2)
	require.NoError(t, err)

	require.Len(t, results.Errors, 1)
	assert.Equal(t, []FileRef{
		{Filename: "file-2", Filemode: FilemodeFile},
		{Filename: "file-3", Filemode: FilemodeFile},
	}, results.Errors[0].Files)
	assert.Contains(t, results.Errors[0].Description, "decoder blew up")
	assert.Equal(t, 1, cache.saves)
}

func TestScan_SingleBatchFailure(t *testing.T) {
	fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
		if docs[0].Filename == "file-4" {
			// Finish after the others to shuffle completion order.
			time.Sleep(20 * time.Millisecond)
			return nil, errors.New("timeout")
		}
		out := &client.Success{}
		for range docs {
			out.Results = append(out.Results, withBreaks(secret("Generic Password", "hunter2")))
		}
		return out, nil
	}}
	s := newTestScanner(fc, &fakeCache{}, WithBatchSize(2))

	results, err := s.Scan(context.Background(), numberedFiles(10), nil, 3)
	require.NoError(t, err)

	require.Len(t, results.Errors, 1)
	assert.Equal(t, []FileRef{
		{Filename: "file-4", Filemode: FilemodeFile},
		{Filename: "file-5", Filemode: FilemodeFile},
	}, results.Errors[0].Files)

	got := make(map[string]bool)
	for _, r := range results.Results {
		got[r.Filename] = true
	}
	assert.Len(t, results.Results, 8)
	assert.False(t, got["file-4"])
	assert.False(t, got["file-5"])
	assert.True(t, got["file-0"])
	assert.True(t, got["file-9"])
}

func TestScan_APIFailureIsReportedAndRecorded(t *testing.T) {
	fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
		return &client.Failure{StatusCode: 400, Detail: `[{"document":["too large"]}]`}, nil
	}}
	var errOut bytes.Buffer
	cache := &fakeCache{}
	s := newTestScanner(fc, cache, WithErrorOutput(&errOut))

	results, err := s.Scan(context.Background(), []Scannable{NewFile("x", "huge.sql")}, nil, 1)
	require.NoError(t, err)

	assert.Empty(t, results.Results)
	require.Len(t, results.Errors, 1)
	assert.Equal(t, "huge.sql", results.Errors[0].Files[0].Filename)
	assert.Contains(t, errOut.String(), "- huge.sql: ")
	assert.Equal(t, 1, cache.saves)
}

func TestScan_FatalFailuresAbort(t *testing.T) {
	tests := []struct {
		name    string
		failure *client.Failure
		check   func(t *testing.T, err error)
	}{
		{"auth", &client.Failure{StatusCode: 401, Detail: "Invalid API key."}, func(t *testing.T, err error) {
			var target *AuthenticationError
			assert.ErrorAs(t, err, &target)
		}},
		{"network", &client.Failure{Detail: "dial tcp: connection refused"}, func(t *testing.T, err error) {
			var target *NetworkError
			assert.ErrorAs(t, err, &target)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
				return tt.failure, nil
			}}
			cache := &fakeCache{}
			s := newTestScanner(fc, cache, WithBatchSize(1))

			_, err := s.Scan(context.Background(), numberedFiles(50), nil, 2)
			require.Error(t, err)
			assert.True(t, IsFatal(err))
			tt.check(t, err)
			assert.Equal(t, 0, cache.saves, "cache must not be saved after a fatal error")

			fc.mu.Lock()
			defer fc.mu.Unlock()
			assert.Less(t, fc.calls, 50, "submission stops after a fatal error")
		})
	}
}

func TestScan_AppliesIgnoreLists(t *testing.T) {
	ignoredSecret := secret("GitHub Token", "ghp_ignored")
	fc := &fakeClient{respond: func(docs []client.Document) (client.Outcome, error) {
		return &client.Success{Results: []client.ScanResult{
			withBreaks(ignoredSecret, secret("Slack Token", "xoxb-1")),
			withBreaks(secret("Generic High Entropy Secret", "abc")),
		}}, nil
	}}
	s := newTestScanner(fc, &fakeCache{},
		WithIgnoredMatches([]filter.IgnoredMatch{{Name: "known", Match: filter.IgnoreSHA(ignoredSecret)}}),
		WithIgnoredDetectors(filter.DetectorSet([]string{"Slack Token", "Generic High Entropy Secret"})),
	)

	results, err := s.Scan(context.Background(), []Scannable{NewFile("a", "a"), NewFile("b", "b")}, nil, 1)
	require.NoError(t, err)
	assert.Empty(t, results.Results, "every break was suppressed")
	assert.Empty(t, results.Errors)
}

type slowClient struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

func (c *slowClient) MultiContentScan(ctx context.Context, docs []client.Document, headers map[string]string) (client.Outcome, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	c.mu.Lock()
	if n > c.peak.Load() {
		c.peak.Store(n)
	}
	c.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return cleanOutcome(docs), nil
}

func TestScan_ConcurrencyIsBounded(t *testing.T) {
	c := &slowClient{}
	s := newTestScanner(c, &fakeCache{}, WithBatchSize(1))

	_, err := s.Scan(context.Background(), numberedFiles(20), nil, 3)
	require.NoError(t, err)
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, c.peak.Load(), int32(1))
}

func TestScan_SendsContextHeaders(t *testing.T) {
	var got map[string]string
	c := contentScannerFunc(func(ctx context.Context, docs []client.Document, headers map[string]string) (client.Outcome, error) {
		got = headers
		return cleanOutcome(docs), nil
	})
	sc := &ScanContext{ScanMode: ModePreCommit, CommandPath: "ggshield secret scan pre-commit", CommandID: "fixed-id"}
	s := NewScanner(c, &fakeCache{}, sc)

	_, err := s.Scan(context.Background(), numberedFiles(1), nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", got["GGShield-Command-Id"])
	assert.Equal(t, "pre_commit", got["mode"])
}

type contentScannerFunc func(ctx context.Context, docs []client.Document, headers map[string]string) (client.Outcome, error)

func (f contentScannerFunc) MultiContentScan(ctx context.Context, docs []client.Document, headers map[string]string) (client.Outcome, error) {
	return f(ctx, docs, headers)
}

func TestScan_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cache := &fakeCache{}
	_, err := newTestScanner(&fakeClient{}, cache).Scan(ctx, numberedFiles(5), nil, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, cache.saves)
}
