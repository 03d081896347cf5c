package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fentz26/doit/internal/audit"
	"github.com/fentz26/doit/internal/blobstore"
	"github.com/fentz26/doit/internal/bookmark"
	"github.com/fentz26/doit/internal/models"
	"github.com/fentz26/doit/internal/oracle"
	"github.com/fentz26/doit/internal/store"
	"github.com/stretchr/testify/require"
)

// scriptedOracle answers Generate calls with canned responses in order.
type scriptedOracle struct {
	mu        sync.Mutex
	responses []string
	genErr    error
	uploadErr error

	requests []oracle.Request
	uploads  []oracle.Image
	released []string
	next     int
}

func (o *scriptedOracle) Name() string { return "scripted" }

func (o *scriptedOracle) Upload(ctx context.Context, img oracle.Image) (oracle.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.uploadErr != nil {
		return oracle.Handle{}, o.uploadErr
	}
	o.next++
	o.uploads = append(o.uploads, img)
	return oracle.Handle{ID: fmt.Sprintf("files/%d", o.next), URI: "mem://" + img.Name, MIMEType: img.MIMEType}, nil
}

func (o *scriptedOracle) Release(ctx context.Context, h oracle.Handle) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.released = append(o.released, h.ID)
	return nil
}

func (o *scriptedOracle) Generate(ctx context.Context, req oracle.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if o.genErr != nil {
		return "", o.genErr
	}
	i := len(o.requests) - 1
	if i < len(o.responses) {
		return o.responses[i], nil
	}
	return "{}", nil
}

type fixture struct {
	store  *store.Store
	blobs  *blobstore.FS
	oracle *scriptedOracle
	worker *Worker
	disp   *Dispatcher
}

func newFixture(t *testing.T, o *scriptedOracle, cfg Config, searcher bookmark.Searcher) *fixture {
	t.Helper()
	dir := t.TempDir()

	s, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	blobs, err := blobstore.NewFS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}

	rec := audit.NewRecorder(s)
	return &fixture{
		store:  s,
		blobs:  blobs,
		oracle: o,
		worker: NewWorker(s, blobs, o, searcher, rec, cfg, nil),
		disp:   NewDispatcher(s, rec, nil),
	}
}

// putCaptures writes n captures under prefix, keys 001..n, each with metadata.
func (f *fixture) putCaptures(t *testing.T, prefix string, n int, withMeta bool) {
	t.Helper()
	for i := 1; i <= n; i++ {
		key := fmt.Sprintf("%03d", i)
		f.put(t, prefix+key+".webp", "image "+key)
		if withMeta {
			f.put(t, prefix+key+"_meta.txt", "TXT: screen "+key)
		}
	}
}

func (f *fixture) put(t *testing.T, name, body string) {
	t.Helper()
	if err := f.blobs.Put(context.Background(), name, strings.NewReader(body)); err != nil {
		t.Fatalf("Put %s failed: %v", name, err)
	}
}

func (f *fixture) listed(t *testing.T, prefix string) []string {
	t.Helper()
	blobs, err := f.blobs.List(context.Background(), prefix)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	names := make([]string, len(blobs))
	for i, b := range blobs {
		names[i] = b.Name
	}
	return names
}

// createQueued creates a job and dispatches it, returning the queue item.
func (f *fixture) createQueued(t *testing.T, jobType models.JobType, payload models.JobPayload) (*models.Job, *models.QueueItem) {
	t.Helper()
	job, err := f.store.CreateJob(jobType, payload)
	require.NoError(t, err)
	item, err := f.disp.Dispatch(context.Background(), job.ID)
	require.NoError(t, err)
	return job, item
}

func (f *fixture) job(t *testing.T, id string) *models.Job {
	t.Helper()
	job, err := f.store.GetJob(id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func partTexts(req oracle.Request) []string {
	texts := make([]string, len(req.Parts))
	for i, p := range req.Parts {
		if p.Handle != nil {
			texts[i] = "<image " + p.Handle.URI + ">"
			continue
		}
		texts[i] = p.Text
	}
	return texts
}

var errOracleDown = errors.New("oracle unavailable")
