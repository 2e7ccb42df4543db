package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/dealflow/model"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fakeCompleter struct {
	mu      sync.Mutex
	answer  string
	err     error
	prompts []string
	systems []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt, system string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.systems = append(f.systems, system)
	return f.answer, f.err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type failingTaskSink struct{}

func (failingTaskSink) CreateTask(context.Context, *model.Task) error {
	return errors.New("task service unavailable")
}

type failingBlobStore struct {
	*MemoryBlobStore
}

func (failingBlobStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("bucket unavailable")
}

type testEnv struct {
	store     *MemoryStore
	blobs     *MemoryBlobStore
	completer *fakeCompleter
	notifier  *recordingNotifier
	deals     *DealService
	documents *DocumentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:     NewMemoryStore(),
		blobs:     NewMemoryBlobStore(),
		completer: &fakeCompleter{err: errors.New("no model in tests")},
		notifier:  &recordingNotifier{},
	}
	env.build(env.store)
	return env
}

func (e *testEnv) build(tasks TaskSink) {
	clock := func() time.Time { return testNow }

	e.documents = NewDocumentService(e.store, e.blobs, e.completer)
	e.documents.now = clock

	dispatcher := NewDispatcher(tasks, e.notifier, NewKYCMailer(e.completer))
	dispatcher.now = clock

	e.deals = NewDealService(e.store, e.documents, dispatcher, "desk", "public")
	e.deals.now = clock
}

func (e *testEnv) newDeal(t *testing.T, tenant, email string) *model.Deal {
	t.Helper()
	ctx := context.Background()
	contact, err := e.deals.CreateContact(ctx, tenant, ContactInput{Name: "Jane Investor", Email: email})
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	deal, err := e.deals.CreateDeal(ctx, tenant, "alice", DealInput{Title: "Acme Fund I", ContactID: contact.ID})
	if err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}
	return deal
}

func (e *testEnv) upload(t *testing.T, tenant, dealID string, fileType model.FileType) *model.Document {
	t.Helper()
	doc, _, err := e.documents.Upload(context.Background(), tenant, dealID, UploadInput{
		Filename:    "file.txt",
		ContentType: "text/plain",
		FileType:    string(fileType),
		Data:        []byte("Name: Jane Investor\nPassport: X1234567"),
		UploadedBy:  "alice",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return doc
}

// cancellingCompleter simulates a client that goes away mid-call.
type cancellingCompleter struct {
	cancel context.CancelFunc
}

func (c cancellingCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	c.cancel()
	return "", ctx.Err()
}

// ctxStore refuses to open a transaction on a done context, like a SQL driver.
type ctxStore struct {
	*MemoryStore
}

func (s ctxStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Tx(ctx, fn)
}

// flakyStore fails the n-th transaction it is asked to open.
type flakyStore struct {
	*MemoryStore
	mu     sync.Mutex
	calls  int
	failAt int
}

func (s *flakyStore) Tx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failAt
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return s.MemoryStore.Tx(ctx, fn)
}
