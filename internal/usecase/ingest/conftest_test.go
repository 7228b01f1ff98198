package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/recall/internal/domain"
	"github.com/kailas-cloud/recall/internal/domain/document"
	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
	"github.com/kailas-cloud/recall/internal/ledger"
)

// --- fake collection ---

type upsertCall struct {
	ids    []string
	bodies []string
	metas  []document.Metadata
}

type fakeCollection struct {
	mu       sync.Mutex
	calls    []upsertCall
	stored   map[string]string
	upsertFn func(call int, ids []string) error
	countErr error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{stored: make(map[string]string)}
}

func (c *fakeCollection) Upsert(_ context.Context, ids, bodies []string, metas []document.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, upsertCall{ids: ids, bodies: bodies, metas: metas})
	if c.upsertFn != nil {
		if err := c.upsertFn(len(c.calls), ids); err != nil {
			return err
		}
	}
	for i, id := range ids {
		c.stored[id] = bodies[i]
	}
	return nil
}

func (c *fakeCollection) Query(context.Context, string, int, *filter.Predicate) ([]result.Hit, error) {
	return nil, nil
}

func (c *fakeCollection) Count(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stored), c.countErr
}

// --- fake engine ---

type fakeEngine struct {
	col     *fakeCollection
	openErr error
	opened  int
}

func (e *fakeEngine) Collection(context.Context) (domain.Collection, error) {
	e.opened++
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.col, nil
}

// --- fake ledger ---

type fakeLedger struct {
	unchangedFn func(path string) (bool, error)
	recorded    []ledger.Entry
	recordErr   error
}

func (l *fakeLedger) Unchanged(_ context.Context, path string, _ int64, _ time.Time) (bool, error) {
	if l.unchangedFn != nil {
		return l.unchangedFn(path)
	}
	return false, nil
}

func (l *fakeLedger) Record(_ context.Context, e ledger.Entry) error {
	l.recorded = append(l.recorded, e)
	return l.recordErr
}

// --- helpers ---

var testNow = time.Date(2026, 2, 8, 15, 30, 0, 0, time.Local)

func newTestService(t *testing.T) (*Service, *fakeEngine, string) {
	t.Helper()
	dir := t.TempDir()
	eng := &fakeEngine{col: newFakeCollection()}
	svc := New(eng, Config{LogDir: dir}).WithClock(func() time.Time { return testNow })
	return svc, eng, dir
}

// writeDay writes lines into <dir>/<YYYY-MM>/<day>.jsonl and returns the path.
func writeDay(t *testing.T, dir, day string, lines ...string) string {
	t.Helper()
	month := filepath.Join(dir, day[:7])
	if err := os.MkdirAll(month, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(month, day+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// entry renders a valid conversation line.
func entry(i int, role string) string {
	return fmt.Sprintf(`{"timestamp":"2026-02-08T10:%02d:%02d","role":%q,"text":"message number %d with enough text"}`,
		i/60%60, i%60, role, i)
}

func entries(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = entry(i, "human")
	}
	return out
}
