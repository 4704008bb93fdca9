package scan

import (
	"context"
	"strings"
	"sync"

	"github.com/CEE-TEE/ggshield/internal/client"
)

type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   [][]string
}

func (r *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, args)
	key := strings.Join(args, " ")
	if err, ok := r.errs[key]; ok {
		return "", err
	}
	return r.outputs[key], nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func showKey(sha string) string {
	return "show " + sha + " --raw -z --patch -m"
}

const stagedKey = "diff --cached --raw -z --patch -m"

type fakeClient struct {
	mu      sync.Mutex
	calls   int
	batches [][]client.Document
	respond func(docs []client.Document) (client.Outcome, error)
}

func (c *fakeClient) MultiContentScan(ctx context.Context, docs []client.Document, headers map[string]string) (client.Outcome, error) {
	c.mu.Lock()
	c.calls++
	c.batches = append(c.batches, docs)
	c.mu.Unlock()
	if c.respond == nil {
		return cleanOutcome(docs), nil
	}
	return c.respond(docs)
}

func cleanOutcome(docs []client.Document) *client.Success {
	out := &client.Success{Results: make([]client.ScanResult, len(docs))}
	for i := range docs {
		out.Results[i] = client.ScanResult{Policies: []string{client.SecretPolicy}}
	}
	return out
}

type fakeCache struct {
	mu     sync.Mutex
	purges int
	saves  int
	found  []string
}

func (c *fakeCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purges++
	c.found = nil
}

func (c *fakeCache) AddFoundPolicyBreak(pb client.PolicyBreak, filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.found = append(c.found, pb.BreakType+" - "+filename)
}

func (c *fakeCache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	return nil
}

func secret(kind, value string) client.PolicyBreak {
	return client.PolicyBreak{
		BreakType: kind,
		Policy:    client.SecretPolicy,
		Matches:   []client.Match{{Match: value, MatchType: "apikey"}},
	}
}

func withBreaks(breaks ...client.PolicyBreak) client.ScanResult {
	return client.ScanResult{
		PolicyBreakCount: len(breaks),
		Policies:         []string{client.SecretPolicy},
		PolicyBreaks:     breaks,
	}
}

func newTestScanner(c ContentScanner, cache Cache, opts ...Option) *Scanner {
	sc := &ScanContext{ScanMode: ModePath, CommandPath: "ggshield secret scan path"}
	return NewScanner(c, cache, sc, opts...)
}
