package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matthewjhunter/ulasan/internal/storage"
)

// Sink is the subset of storage the ingester writes through.
type Sink interface {
	ResolvePlatforms(ctx context.Context, names []string) (map[string]int64, error)
	ResolveAspects(ctx context.Context, names []string) (map[string]int64, error)
	UpsertDailySummary(ctx context.Context, platformID int64, date string, totalReviews, totalAspectedReviews int) (int64, error)
	UpsertSentimentDetail(ctx context.Context, summaryID, aspectID int64, totalAspectReviews int, counts storage.SentimentCounts, shares storage.SentimentShares) error
	InsertVersion(ctx context.Context, platformID int64, versionNumber, releaseDate string) (bool, error)
}

// Observer is told about every finished batch.
type Observer interface {
	ObserveBatch(o Outcome)
}

// Payload is one named upload. Err is set when the payload could not be
// read; the batch then fails without being decoded.
type Payload struct {
	Name string
	Data []byte
	Err  error
}

// State is a batch's position in its lifecycle.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateRejected   State = "rejected"
	StateProcessing State = "processing"
	StateCommitted  State = "committed"
	StateFailed     State = "failed"
)

type Counters struct {
	Records          int `json:"records"`
	SkippedRecords   int `json:"skipped_records"`
	Details          int `json:"details"`
	SkippedDetails   int `json:"skipped_details"`
	VersionsInserted int `json:"versions_inserted"`
	VersionsIgnored  int `json:"versions_ignored"`
}

func (c *Counters) add(o Counters) {
	c.Records += o.Records
	c.SkippedRecords += o.SkippedRecords
	c.Details += o.Details
	c.SkippedDetails += o.SkippedDetails
	c.VersionsInserted += o.VersionsInserted
	c.VersionsIgnored += o.VersionsIgnored
}

// Outcome is the terminal report for one batch.
type Outcome struct {
	Name     string
	Kind     Kind
	State    State
	Err      error
	Counters Counters
	Duration time.Duration
}

// OK reports whether the batch committed.
func (o Outcome) OK() bool { return o.State == StateCommitted }

// LogLine renders the outcome as one line of the run log.
func (o Outcome) LogLine() string {
	if o.OK() {
		return fmt.Sprintf("✅ %s: Sukses.", o.Name)
	}
	return fmt.Sprintf("❌ %s: Gagal - %v", o.Name, o.Err)
}

// Result is the report for a whole run.
type Result struct {
	RunID     string
	Success   bool
	Message   string
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

type Ingester struct {
	sink     Sink
	logger   *zap.Logger
	workers  int
	observer Observer
}

type Option func(*Ingester)

func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithWorkers bounds how many (platform, date) groups of a sentiment batch
// are written concurrently. Values below one mean one.
func WithWorkers(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.workers = n
		}
	}
}

func WithObserver(o Observer) Option {
	return func(in *Ingester) { in.observer = o }
}

func New(sink Sink, opts ...Option) *Ingester {
	in := &Ingester{sink: sink, logger: zap.NewNop(), workers: 1}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run processes payloads in order. Each batch succeeds or fails on its own;
// the run itself never returns an error.
func (in *Ingester) Run(ctx context.Context, payloads []Payload) Result {
	res := Result{RunID: uuid.NewString()}
	if len(payloads) == 0 {
		res.Message = ErrNoPayloads.Error()
		return res
	}

	log := in.logger.With(zap.String("run_id", res.RunID))
	log.Info("ingest run started", zap.Int("batches", len(payloads)))

	for _, p := range payloads {
		var out Outcome
		if err := ctx.Err(); err != nil {
			out = Outcome{Name: p.Name, Kind: KindUnknown, State: StateFailed, Err: err}
		} else {
			out = in.process(ctx, p)
		}
		in.report(log, out)
		res.Outcomes = append(res.Outcomes, out)
		if out.OK() {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	res.Success = res.Failed == 0
	res.Message = runMessage(res)
	log.Info("ingest run finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))
	return res
}

func runMessage(res Result) string {
	lines := make([]string, len(res.Outcomes))
	for i, o := range res.Outcomes {
		lines[i] = o.LogLine()
	}
	return fmt.Sprintf("Proses selesai. %d file berhasil, %d file gagal.\nLog:\n%s",
		res.Succeeded, res.Failed, strings.Join(lines, "\n"))
}

func (in *Ingester) report(log *zap.Logger, out Outcome) {
	fields := []zap.Field{
		zap.String("batch", out.Name),
		zap.String("kind", string(out.Kind)),
		zap.String("state", string(out.State)),
		zap.Duration("duration", out.Duration),
		zap.Int("records", out.Counters.Records),
		zap.Int("skipped_records", out.Counters.SkippedRecords),
		zap.Int("details", out.Counters.Details),
		zap.Int("skipped_details", out.Counters.SkippedDetails),
		zap.Int("versions_inserted", out.Counters.VersionsInserted),
		zap.Int("versions_ignored", out.Counters.VersionsIgnored),
	}
	if out.OK() {
		log.Info("batch committed", fields...)
	} else {
		log.Warn("batch not committed", append(fields, zap.Error(out.Err))...)
	}
	if in.observer != nil {
		in.observer.ObserveBatch(out)
	}
}

func (in *Ingester) process(ctx context.Context, p Payload) Outcome {
	start := time.Now()
	out := Outcome{Name: p.Name, Kind: KindUnknown, State: StateReceived}
	if p.Err != nil {
		out.State = StateFailed
		out.Err = fmt.Errorf("failed to read file: %w", p.Err)
		return finish(out, start)
	}

	batch, err := Decode(p.Data)
	if err != nil {
		out.Err = err
		out.State = StateFailed
		var de *DecodeError
		switch {
		case IsValidation(err):
			out.State = StateRejected
		case errors.As(err, &de):
			out.Kind = de.Kind
		}
		return finish(out, start)
	}
	out.Kind = batch.Kind()
	out.State = StateClassified
	in.logger.Debug("batch classified",
		zap.String("batch", p.Name),
		zap.String("kind", string(out.Kind)),
		zap.Int("records", batch.Len()))

	out.State = StateProcessing
	switch b := batch.(type) {
	case SentimentBatch:
		err = in.writeSentiment(ctx, b, &out.Counters)
	case VersionBatch:
		err = in.writeVersions(ctx, b, &out.Counters)
	}
	if err != nil {
		out.State = StateFailed
		out.Err = err
		return finish(out, start)
	}
	out.State = StateCommitted
	return finish(out, start)
}

func finish(out Outcome, start time.Time) Outcome {
	out.Duration = time.Since(start)
	return out
}

func (in *Ingester) writeSentiment(ctx context.Context, b SentimentBatch, total *Counters) error {
	var platformNames, aspectNames []string
	for _, r := range b.Records {
		platformNames = append(platformNames, r.Platform)
		aspectNames = append(aspectNames, r.AspectNames()...)
	}

	platforms, err := in.sink.ResolvePlatforms(ctx, platformNames)
	if err != nil {
		return &StorageError{Op: "resolve platforms", Err: err}
	}
	aspects, err := in.sink.ResolveAspects(ctx, aspectNames)
	if err != nil {
		return &StorageError{Op: "resolve aspects", Err: err}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for _, group := range groupByDay(b.Records) {
		g.Go(func() error {
			var c Counters
			defer func() {
				mu.Lock()
				total.add(c)
				mu.Unlock()
			}()
			for _, r := range group {
				if err := in.writeSentimentRecord(gctx, r, platforms, aspects, &c); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// groupByDay splits records into (platform, date) groups in order of first
// appearance. Records inside a group keep their input order.
func groupByDay(records []SentimentRecord) [][]SentimentRecord {
	type key struct{ platform, date string }
	index := make(map[key]int)
	var groups [][]SentimentRecord
	for _, r := range records {
		k := key{r.Platform, r.Date}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}

func (in *Ingester) writeSentimentRecord(ctx context.Context, r SentimentRecord, platforms, aspects map[string]int64, c *Counters) error {
	platformID, ok := platforms[r.Platform]
	if !ok {
		c.SkippedRecords++
		in.logger.Warn("skipping record", zap.String("date", r.Date),
			zap.Error(&ReferenceError{Dimension: "platform", Name: r.Platform}))
		return nil
	}

	summaryID, err := in.sink.UpsertDailySummary(ctx, platformID, r.Date, r.TotalReviews, r.TotalAspectedReviews)
	if err != nil {
		return &StorageError{Op: fmt.Sprintf("%s %s", r.Platform, r.Date), Err: err}
	}
	c.Records++

	for _, name := range r.AspectNames() {
		aspectID, ok := aspects[name]
		if !ok {
			c.SkippedDetails++
			in.logger.Warn("skipping detail",
				zap.String("platform", r.Platform), zap.String("date", r.Date),
				zap.Error(&ReferenceError{Dimension: "aspect", Name: name}))
			continue
		}
		a := r.Aspects[name]
		err := in.sink.UpsertSentimentDetail(ctx, summaryID, aspectID, a.TotalAspectReviews,
			storage.SentimentCounts{Positive: a.Counts.Positive, Neutral: a.Counts.Neutral, Negative: a.Counts.Negative},
			storage.SentimentShares{Positive: a.Shares.Positive, Neutral: a.Shares.Neutral, Negative: a.Shares.Negative},
		)
		if err != nil {
			return &StorageError{Op: fmt.Sprintf("%s %s %s", r.Platform, r.Date, name), Err: err}
		}
		c.Details++
	}
	return nil
}

func (in *Ingester) writeVersions(ctx context.Context, b VersionBatch, c *Counters) error {
	names := make([]string, len(b.Records))
	for i, r := range b.Records {
		names[i] = r.Platform
	}
	platforms, err := in.sink.ResolvePlatforms(ctx, names)
	if err != nil {
		return &StorageError{Op: "resolve platforms", Err: err}
	}

	for _, r := range b.Records {
		platformID, ok := platforms[r.Platform]
		if !ok {
			c.SkippedRecords++
			in.logger.Warn("skipping version",
				zap.String("version", string(r.Version)),
				zap.Error(&ReferenceError{Dimension: "platform", Name: r.Platform}))
			continue
		}
		inserted, err := in.sink.InsertVersion(ctx, platformID, string(r.Version), r.ReleaseDate)
		if err != nil {
			return &StorageError{Op: fmt.Sprintf("%s %s", r.Platform, r.Version), Err: err}
		}
		c.Records++
		if inserted {
			c.VersionsInserted++
		} else {
			c.VersionsIgnored++
		}
	}
	return nil
}
