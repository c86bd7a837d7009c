package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/warehouse"
)

// Record builds a raw record whose JSON body is fields plus id and
// updated_at.
func Record(id int64, updatedAt time.Time, fields map[string]any) models.Record {
	body := map[string]any{"id": id, "updated_at": updatedAt.UTC().Format(time.RFC3339)}
	for k, v := range fields {
		body[k] = v
	}
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return models.Record{ID: id, UpdatedAt: updatedAt.UTC(), Raw: raw}
}

// FakeFetcher serves records from memory the way the upstream filters them:
// updated_at >= UpdatedAtMin and id > SinceID, ordered by id.
type FakeFetcher struct {
	mu       sync.Mutex
	records  map[models.Resource][]models.Record
	failures map[models.Resource][]error
	requests map[models.Resource][]models.PageRequest
}

// NewFakeFetcher returns an empty fetcher.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		records:  make(map[models.Resource][]models.Record),
		failures: make(map[models.Resource][]error),
		requests: make(map[models.Resource][]models.PageRequest),
	}
}

// Add stores records for resource.
func (f *FakeFetcher) Add(resource models.Resource, records ...models.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[resource] = append(f.records[resource], records...)
	sort.Slice(f.records[resource], func(i, j int) bool {
		return f.records[resource][i].ID < f.records[resource][j].ID
	})
}

// FailNext makes the next len(errs) calls for resource return errs in order.
func (f *FakeFetcher) FailNext(resource models.Resource, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[resource] = append(f.failures[resource], errs...)
}

// Requests returns every request received for resource.
func (f *FakeFetcher) Requests(resource models.Resource) []models.PageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PageRequest(nil), f.requests[resource]...)
}

// FetchPage implements paginator.Fetcher.
func (f *FakeFetcher) FetchPage(ctx context.Context, resource models.Resource, req models.PageRequest) (models.Page, error) {
	if err := ctx.Err(); err != nil {
		return models.Page{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[resource] = append(f.requests[resource], req)

	if errs := f.failures[resource]; len(errs) > 0 {
		f.failures[resource] = errs[1:]
		return models.Page{}, errs[0]
	}

	var page models.Page
	for _, rec := range f.records[resource] {
		if rec.UpdatedAt.Before(req.UpdatedAtMin) || rec.ID <= req.SinceID {
			continue
		}
		if req.Limit > 0 && len(page.Records) == req.Limit {
			break
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// FakeWarehouse keeps committed rows in memory.
type FakeWarehouse struct {
	mu sync.Mutex

	rows       map[string][]models.Row
	failures   map[string][]error
	connects   int
	closes     int
	open       int
	ConnectErr error
	CloseErr   error
}

// NewFakeWarehouse returns an empty warehouse.
func NewFakeWarehouse() *FakeWarehouse {
	return &FakeWarehouse{
		rows:     make(map[string][]models.Row),
		failures: make(map[string][]error),
	}
}

// FailNext makes the next len(errs) inserts into table fail with errs in
// order. Failed inserts commit nothing.
func (w *FakeWarehouse) FailNext(table string, errs ...error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[table] = append(w.failures[table], errs...)
}

// Rows returns the committed rows of table.
func (w *FakeWarehouse) Rows(table string) []models.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Row(nil), w.rows[table]...)
}

// Connects reports how many sessions were opened.
func (w *FakeWarehouse) Connects() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connects
}

// Closes reports how many session Close calls were made.
func (w *FakeWarehouse) Closes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closes
}

// OpenSessions reports sessions opened and not yet closed.
func (w *FakeWarehouse) OpenSessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

func (w *FakeWarehouse) Name() string { return "fake" }

func (w *FakeWarehouse) Close() error { return nil }

// Connect implements warehouse.Warehouse.
func (w *FakeWarehouse) Connect(ctx context.Context) (warehouse.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ConnectErr != nil {
		return nil, w.ConnectErr
	}
	w.connects++
	w.open++
	return &fakeSession{w: w}, nil
}

type fakeSession struct {
	w      *FakeWarehouse
	closed bool
}

func (s *fakeSession) InsertBatch(ctx context.Context, table string, rows []models.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := warehouse.ValidateBatch(table, rows); err != nil || len(rows) == 0 {
		return err
	}

	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if errs := s.w.failures[table]; len(errs) > 0 {
		s.w.failures[table] = errs[1:]
		return errs[0]
	}
	s.w.rows[table] = append(s.w.rows[table], rows...)
	return nil
}

func (s *fakeSession) Close() error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.closes++
	if !s.closed {
		s.closed = true
		s.w.open--
	}
	return s.w.CloseErr
}
