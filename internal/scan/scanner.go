package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CEE-TEE/ggshield/internal/client"
	"github.com/CEE-TEE/ggshield/internal/filter"
)

// DefaultConcurrency is the number of batches scanned in parallel.
const DefaultConcurrency = 4

// ContentScanner sends documents to the scanning API.
type ContentScanner interface {
	MultiContentScan(ctx context.Context, documents []client.Document, headers map[string]string) (client.Outcome, error)
}

// Cache records the secrets found during a scan.
type Cache interface {
	Purge()
	AddFoundPolicyBreak(pb client.PolicyBreak, filename string)
	Save() error
}

// Scanner dispatches files to a ContentScanner in batches and filters the
// answers.
type Scanner struct {
	client    ContentScanner
	cache     Cache
	ignored   []filter.IgnoredMatch
	detectors map[string]struct{}
	headers   map[string]string
	tracer    trace.Tracer
	errOut    io.Writer
	batchSize int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithIgnoredMatches sets the matches-ignore list.
func WithIgnoredMatches(ignored []filter.IgnoredMatch) Option {
	return func(s *Scanner) { s.ignored = ignored }
}

// WithIgnoredDetectors sets the banlisted detector types.
func WithIgnoredDetectors(detectors map[string]struct{}) Option {
	return func(s *Scanner) { s.detectors = detectors }
}

// WithTracer overrides the tracer used for batch spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scanner) { s.tracer = t }
}

// WithErrorOutput sets where batch diagnostics are printed. Defaults to
// os.Stderr.
func WithErrorOutput(w io.Writer) Option {
	return func(s *Scanner) { s.errOut = w }
}

// WithBatchSize caps the documents per request below
// client.MultiDocumentLimit.
func WithBatchSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 && n <= client.MultiDocumentLimit {
			s.batchSize = n
		}
	}
}

// NewScanner creates a Scanner sending requests tagged with sc.
func NewScanner(c ContentScanner, cache Cache, sc *ScanContext, opts ...Option) *Scanner {
	s := &Scanner{
		client:    c,
		cache:     cache,
		headers:   sc.Headers(),
		tracer:    otel.Tracer("github.com/CEE-TEE/ggshield/internal/scan"),
		errOut:    os.Stderr,
		batchSize: client.MultiDocumentLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withCache returns a copy of s recording found secrets into cache.
func (s *Scanner) withCache(cache Cache) *Scanner {
	cp := *s
	cp.cache = cache
	return &cp
}

type batchOutcome struct {
	batch   []Scannable
	outcome client.Outcome
	err     error
}

// Scan scans files and returns the results in completion order. progress is
// called with the size of each batch when it is submitted, then once with the
// number of files skipped because their content could not be decoded; it is
// called from a single goroutine other than the caller's.
//
// The returned error is non-nil only for fatal failures (see IsFatal) or when
// ctx is cancelled. In that case the cache is not saved. A fatal failure
// cancels the batches still in flight and their outcomes are discarded.
func (s *Scanner) Scan(ctx context.Context, files []Scannable, progress func(int), concurrency int) (Results, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if progress == nil {
		progress = func(int) {}
	}

	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return Results{}, fmt.Errorf("creating scan pool: %w", err)
	}
	defer pool.Release()

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.cache.Purge()

	done := make(chan batchOutcome)
	go func() {
		var wg sync.WaitGroup
		s.submitBatches(scanCtx, pool, &wg, files, progress, done)
		wg.Wait()
		close(done)
	}()

	var (
		results Results
		fatal   error
	)
	for o := range done {
		if fatal != nil {
			continue
		}
		if err := s.collect(&results, o); err != nil {
			fatal = err
			cancel()
		}
	}

	if fatal != nil {
		return results, fatal
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	if err := s.cache.Save(); err != nil {
		slog.Warn("saving cache", "err", err)
	}
	return results, nil
}

// submitBatches runs on its own goroutine. Batches are submitted as soon as
// they are full; submission stops once ctx is done.
func (s *Scanner) submitBatches(ctx context.Context, pool *ants.Pool, wg *sync.WaitGroup, files []Scannable, progress func(int), done chan<- batchOutcome) {
	skipped := 0
	batch := make([]Scannable, 0, s.batchSize)

	submit := func() bool {
		if ctx.Err() != nil {
			return false
		}
		b := batch
		batch = make([]Scannable, 0, s.batchSize)

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			done <- s.scanBatch(ctx, b)
		})
		if err != nil {
			wg.Done()
			done <- batchOutcome{batch: b, err: fmt.Errorf("submitting batch: %w", err)}
		}
		progress(len(b))
		return true
	}

	for _, f := range files {
		if f.Document() == "" {
			skipped++
			continue
		}
		batch = append(batch, f)
		if len(batch) == s.batchSize && !submit() {
			return
		}
	}
	if len(batch) > 0 && !submit() {
		return
	}
	progress(skipped)
}

// scanBatch turns a panic in the client into a batch error so the batch
// still reaches the collector.
func (s *Scanner) scanBatch(ctx context.Context, batch []Scannable) (o batchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("batch scan panicked", "batch", len(batch), "panic", r)
			o = batchOutcome{batch: batch, err: fmt.Errorf("scanning batch: panic: %v", r)}
		}
	}()

	ctx, span := s.tracer.Start(ctx, "scan.batch",
		trace.WithAttributes(attribute.Int("batch.documents", len(batch))))
	defer span.End()

	documents := make([]client.Document, len(batch))
	for i, f := range batch {
		documents[i] = client.Document{Document: f.Document(), Filename: f.Filename()}
	}

	outcome, err := s.client.MultiContentScan(ctx, documents, s.headers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if f, ok := outcome.(*client.Failure); ok {
		span.SetAttributes(attribute.Int("http.status_code", f.StatusCode))
		span.SetStatus(codes.Error, f.Detail)
	}
	return batchOutcome{batch: batch, outcome: outcome, err: err}
}

// collect folds one finished batch into results. It runs on the goroutine
// that called Scan and is the only place touching the cache.
func (s *Scanner) collect(results *Results, o batchOutcome) error {
	if o.err != nil {
		slog.Debug("batch scan failed", "batch", len(o.batch), "err", o.err)
		results.Errors = append(results.Errors, batchError(o.batch, o.err.Error()))
		return nil
	}

	switch out := o.outcome.(type) {
	case *client.Failure:
		if err := handleScanChunkError(out, o.batch, s.errOut); err != nil {
			return err
		}
		results.Errors = append(results.Errors, batchError(o.batch, out.Detail))
	case *client.Success:
		if len(out.Results) != len(o.batch) {
			slog.Warn("scan answer does not match the batch", "documents", len(o.batch), "results", len(out.Results))
		}
		for i := range min(len(out.Results), len(o.batch)) {
			file, scanned := o.batch[i], out.Results[i]
			filter.RemoveIgnoredFromResult(&scanned, s.ignored)
			filter.RemoveResultsFromIgnoredDetectors(&scanned, s.detectors)
			if !scanned.HasPolicyBreaks() {
				continue
			}
			for _, pb := range scanned.PolicyBreaks {
				s.cache.AddFoundPolicyBreak(pb, file.Filename())
			}
			results.Results = append(results.Results, Result{
				Content:  file.Document(),
				Filemode: file.Filemode(),
				Filename: file.Filename(),
				Scan:     scanned,
			})
		}
	default:
		results.Errors = append(results.Errors, batchError(o.batch, "empty response from the scanning API"))
	}
	return nil
}

func batchError(batch []Scannable, description string) Error {
	refs := make([]FileRef, len(batch))
	for i, f := range batch {
		refs[i] = FileRef{Filename: f.Filename(), Filemode: f.Filemode()}
	}
	return Error{Files: refs, Description: description}
}
