package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/document"
	"github.com/kailas-cloud/recall/internal/domain/logrecord"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/ledger"
	"github.com/kailas-cloud/recall/internal/metrics"
)

// DefaultBatchSize is the number of documents per upsert call.
const DefaultBatchSize = 50

const fileExt = ".jsonl"

// Config holds ingest settings.
type Config struct {
	// LogDir holds <YYYY-MM>/<YYYY-MM-DD>.jsonl files.
	LogDir    string
	BatchSize int
	// Source tags every document, e.g. "redwood".
	Source string
}

// FileStatus is the outcome for one file.
type FileStatus string

const (
	// StatusIngested means at least one document was upserted.
	StatusIngested FileStatus = "ingested"
	// StatusEmpty means the file had no valid entries.
	StatusEmpty FileStatus = "skipped_empty"
	// StatusUnchanged means the ledger showed the file as already ingested.
	StatusUnchanged FileStatus = "skipped_unchanged"
)

// FileReport summarizes one file.
type FileReport struct {
	Path       string
	Day        string
	Status     FileStatus
	Lines      int
	Dropped    int
	Duplicates int
	Documents  int
	Batches    int
}

// Report summarizes a run.
type Report struct {
	RunID           string
	Files           []FileReport
	Total           int
	CollectionCount int
}

// Selection picks the files of a run. Zero value means today's file.
type Selection struct {
	All   bool
	Dates []string
	// Force ignores the ledger.
	Force bool
}

// BatchError reports the first failed upsert of a file. Batches before it
// remain stored.
type BatchError struct {
	File  string
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s: batch %d: %v", e.File, e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Service turns JSONL log files into indexed documents.
type Service struct {
	engine Engine
	ledger Ledger
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// New creates an ingest service.
func New(engine Engine, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Source == "" {
		cfg.Source = document.DefaultSource
	}
	return &Service{
		engine: engine,
		cfg:    cfg,
		now:    time.Now,
		logger: zap.NewNop(),
	}
}

// WithLedger enables skipping unchanged files.
func (s *Service) WithLedger(l Ledger) *Service {
	s.ledger = l
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = l
	return s
}

// WithClock overrides the clock used to pick today's file.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Select resolves a selection to file paths. Explicit dates whose file does
// not exist are skipped silently.
func (s *Service) Select(sel Selection) ([]string, error) {
	if sel.All {
		return s.allFiles()
	}

	dates := sel.Dates
	if len(dates) == 0 {
		dates = []string{s.now().Format(filter.DateLayout)}
	}

	var paths []string
	for _, d := range dates {
		if _, err := time.Parse(filter.DateLayout, d); err != nil {
			return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
		p := s.DayFile(d)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// DayFile returns the path of the log file for day (YYYY-MM-DD).
func (s *Service) DayFile(day string) string {
	return filepath.Join(s.cfg.LogDir, day[:7], day+fileExt)
}

func (s *Service) allFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.cfg.LogDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == fileExt {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.cfg.LogDir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Run ingests the selected files in order and stops at the first failure.
// The report covers the files processed before the failure.
func (s *Service) Run(ctx context.Context, sel Selection) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run_id", report.RunID))

	paths, err := s.Select(sel)
	if err != nil {
		return report, err
	}
	if len(paths) == 0 {
		return report, domain.ErrNoSourceFiles
	}
	log.Info("ingest started", zap.Int("files", len(paths)), zap.Bool("force", sel.Force))

	for _, p := range paths {
		fr, err := s.ingestPath(ctx, p, sel.Force, report.RunID, log)
		report.Files = append(report.Files, fr)
		report.Total += fr.Documents
		if err != nil {
			return report, err
		}
	}

	col, err := s.engine.Collection(ctx)
	if err != nil {
		return report, fmt.Errorf("open collection: %w", err)
	}
	if report.CollectionCount, err = col.Count(ctx); err != nil {
		return report, fmt.Errorf("count collection: %w", err)
	}

	log.Info("ingest finished",
		zap.Int("files", len(report.Files)),
		zap.Int("documents", report.Total),
		zap.Int("collection_count", report.CollectionCount),
	)
	return report, nil
}

// IngestChanged ingests one file unless the ledger shows it unchanged.
// Used by watch mode.
func (s *Service) IngestChanged(ctx context.Context, path string) (FileReport, error) {
	runID := uuid.NewString()
	return s.ingestPath(ctx, path, false, runID, s.logger.With(zap.String("run_id", runID)))
}

func (s *Service) ingestPath(ctx context.Context, path string, force bool, runID string, log *zap.Logger) (FileReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileReport{Path: path, Day: dayOf(path)}, fmt.Errorf("stat %s: %w", path, err)
	}

	if s.ledger != nil && !force {
		unchanged, err := s.ledger.Unchanged(ctx, path, info.Size(), info.ModTime())
		if err != nil {
			log.Warn("ledger lookup failed, ingesting anyway", zap.String("file", path), zap.Error(err))
		} else if unchanged {
			metrics.IngestFilesSkippedTotal.WithLabelValues("unchanged").Inc()
			log.Info("file unchanged since last ingest, skipping", zap.String("file", path))
			return FileReport{Path: path, Day: dayOf(path), Status: StatusUnchanged}, nil
		}
	}

	fr, err := s.ingestFile(ctx, path, log)
	if err != nil {
		return fr, err
	}

	if s.ledger != nil {
		entry := ledger.Entry{
			Path:    path,
			Day:     fr.Day,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Records: fr.Documents,
			RunID:   runID,
		}
		if err := s.ledger.Record(ctx, entry); err != nil {
			log.Warn("ledger update failed", zap.String("file", path), zap.Error(err))
		}
	}
	return fr, nil
}

// IngestFile normalizes, dedupes and upserts one file in batches.
func (s *Service) IngestFile(ctx context.Context, path string) (FileReport, error) {
	return s.ingestFile(ctx, path, s.logger)
}

func (s *Service) ingestFile(ctx context.Context, path string, log *zap.Logger) (FileReport, error) {
	fr := FileReport{Path: path, Day: dayOf(path)}
	name := filepath.Base(path)
	log = log.With(zap.String("file", name))

	records, err := s.readRecords(path, fr.Day, &fr, log)
	if err != nil {
		return fr, err
	}

	unique := logrecord.Dedupe(records)
	fr.Duplicates = len(records) - len(unique)
	if fr.Duplicates > 0 {
		metrics.IngestDroppedTotal.WithLabelValues("duplicate").Add(float64(fr.Duplicates))
	}

	if len(unique) == 0 {
		fr.Status = StatusEmpty
		metrics.IngestFilesSkippedTotal.WithLabelValues("empty").Inc()
		log.Info("no valid entries, skipping", zap.Int("lines", fr.Lines))
		return fr, nil
	}

	docs := make([]document.Document, len(unique))
	for i := range unique {
		docs[i] = document.FromRecord(&unique[i], s.cfg.Source)
	}

	col, err := s.engine.Collection(ctx)
	if err != nil {
		return fr, fmt.Errorf("%s: open collection: %w", name, err)
	}

	for start := 0; start < len(docs); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(docs))
		batch := start/s.cfg.BatchSize + 1
		ids, bodies, metas := document.Columns(docs[start:end])

		if err := col.Upsert(ctx, ids, bodies, metas); err != nil {
			metrics.IngestBatchFailuresTotal.Inc()
			log.Error("batch upsert failed", zap.Int("batch", batch), zap.Int("entries", len(ids)), zap.Error(err))
			return fr, &BatchError{File: name, Batch: batch, Err: err}
		}

		fr.Batches++
		fr.Documents += len(ids)
		metrics.IngestDocumentsTotal.Add(float64(len(ids)))
		log.Info("embedded batch", zap.Int("batch", batch), zap.Int("entries", len(ids)))
	}

	fr.Status = StatusIngested
	log.Info("file ingested",
		zap.Int("documents", fr.Documents),
		zap.Int("lines", fr.Lines),
		zap.Int("dropped", fr.Dropped),
		zap.Int("duplicates", fr.Duplicates),
	)
	return fr, nil
}

func (s *Service) readRecords(path, day string, fr *FileReport, log *zap.Logger) ([]logrecord.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var records []logrecord.Record
	err = scanLines(f, MaxLineLength, func(n int, line []byte, tooLong bool) {
		fr.Lines++
		metrics.IngestLinesTotal.Inc()

		reason := logrecord.DropMalformed
		if !tooLong {
			var r logrecord.Record
			r, reason = logrecord.Explain(line, day)
			if reason == logrecord.DropNone {
				records = append(records, r)
				return
			}
		}

		fr.Dropped++
		metrics.IngestDroppedTotal.WithLabelValues(string(reason)).Inc()
		if reason != logrecord.DropBlank {
			log.Debug("line dropped", zap.Int("line", n), zap.String("reason", string(reason)), zap.Bool("too_long", tooLong))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// dayOf returns the file stem, e.g. "2026-02-08".
func dayOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
