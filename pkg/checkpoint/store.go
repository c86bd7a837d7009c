// Package checkpoint keeps the per-resource sync watermarks.
//
// The whole state is one document, loaded once when the store is opened and
// held in memory. Every Set writes the full document back through a Backend
// so a crash loses at most the resource that was in flight. The store
// assumes a single sync process; it takes no cross-process lock.
package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// Entry is the persisted state of one resource.
type Entry struct {
	LastSync *time.Time `json:"lastSync"`
}

// Document is the persisted form: source system -> resource -> entry.
type Document map[string]map[string]Entry

// Backend reads and writes the serialized document.
type Backend interface {
	// Load returns the stored bytes, or (nil, nil) when nothing is stored.
	Load(ctx context.Context) ([]byte, error)
	// Save replaces the stored bytes.
	Save(ctx context.Context, data []byte) error
	// Name identifies the backend in logs.
	Name() string
}

// Watermark is one (source, resource) position.
type Watermark struct {
	SourceSystem string
	Resource     string
	LastSync     *time.Time
}

// Store is the in-memory authority for watermarks.
type Store struct {
	backend Backend
	logger  *zap.Logger

	// OnPersistError, when set, is called for every failed persist.
	OnPersistError func(err error)

	mu    sync.RWMutex
	doc   Document
	dirty bool
}

// Open loads the document from backend. A missing document starts from
// defaults. A corrupt document is logged and replaced by defaults.
func Open(ctx context.Context, backend Backend, defaults Document, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With(zap.String("component", "checkpoint"), zap.String("backend", backend.Name())),
		doc:     defaults.clone(),
	}

	data, err := backend.Load(ctx)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypePersistence, "failed to load checkpoint state").
			WithDetail("backend", backend.Name())
	}
	if len(data) == 0 {
		s.logger.Info("no checkpoint state found, starting from defaults")
		return s, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Error("checkpoint state is corrupt, starting from defaults", zap.Error(err))
		return s, nil
	}
	for source, resources := range doc {
		for resource, entry := range resources {
			s.put(source, resource, entry.LastSync)
		}
	}
	s.logger.Debug("checkpoint state loaded", zap.Int("bytes", len(data)))
	return s, nil
}

// Get returns the last committed watermark, or nil if the resource was never
// synced. It never touches the backend.
func (s *Store) Get(source, resource string) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.doc[source][resource]
	if !ok || entry.LastSync == nil {
		return nil
	}
	t := *entry.LastSync
	return &t
}

// Set records a new watermark and persists the whole document. A persist
// failure is logged and reported through OnPersistError but not returned:
// the in-memory value stays updated and the next successful persist
// carries it. A restart before then re-fetches already written records,
// which is safe for at-least-once delivery.
func (s *Store) Set(ctx context.Context, source, resource string, t time.Time) {
	s.mu.Lock()
	s.put(source, resource, &t)
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		s.reportPersistError(err, source, resource)
	}
}

// Snapshot returns a copy of every entry of source.
func (s *Store) Snapshot(source string) map[string]*time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*time.Time, len(s.doc[source]))
	for resource, entry := range s.doc[source] {
		if entry.LastSync == nil {
			out[resource] = nil
			continue
		}
		t := *entry.LastSync
		out[resource] = &t
	}
	return out
}

// Restore replaces every entry of source with snapshot and persists once.
func (s *Store) Restore(ctx context.Context, source string, snapshot map[string]*time.Time) {
	s.mu.Lock()
	s.doc[source] = make(map[string]Entry, len(snapshot))
	for resource, t := range snapshot {
		s.put(source, resource, t)
	}
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		s.reportPersistError(err, source, "*")
	}
}

// Flush retries persisting a document whose last persist failed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

// Watermarks lists every entry sorted by source then resource.
func (s *Store) Watermarks() []Watermark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Watermark
	for source, resources := range s.doc {
		for resource, entry := range resources {
			w := Watermark{SourceSystem: source, Resource: resource}
			if entry.LastSync != nil {
				t := *entry.LastSync
				w.LastSync = &t
			}
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceSystem != out[j].SourceSystem {
			return out[i].SourceSystem < out[j].SourceSystem
		}
		return out[i].Resource < out[j].Resource
	})
	return out
}

// Document returns the state serialized as it is persisted.
func (s *Store) Document() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.doc, "", "  ")
}

func (s *Store) put(source, resource string, t *time.Time) {
	if s.doc[source] == nil {
		s.doc[source] = make(map[string]Entry)
	}
	var entry Entry
	if t != nil {
		u := t.UTC()
		entry.LastSync = &u
	}
	s.doc[source][resource] = entry
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		s.dirty = true
		return synerrors.Wrap(err, synerrors.ErrorTypePersistence, "failed to encode checkpoint state")
	}
	if err := s.backend.Save(ctx, data); err != nil {
		s.dirty = true
		return synerrors.Wrap(err, synerrors.ErrorTypePersistence, "failed to save checkpoint state").
			WithDetail("backend", s.backend.Name())
	}
	s.dirty = false
	s.logger.Debug("checkpoint state saved", zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) reportPersistError(err error, source, resource string) {
	s.logger.Warn("checkpoint persist failed; progress is kept in memory only",
		zap.String("source", source),
		zap.String("resource", resource),
		zap.Error(err))
	if s.OnPersistError != nil {
		s.OnPersistError(err)
	}
}

// DefaultDocument returns a document with every resource of source unsynced.
func DefaultDocument(source string, resources []string) Document {
	doc := Document{source: make(map[string]Entry, len(resources))}
	for _, r := range resources {
		doc[source][r] = Entry{}
	}
	return doc
}

func (d Document) clone() Document {
	out := make(Document, len(d))
	for source, resources := range d {
		m := make(map[string]Entry, len(resources))
		for r, e := range resources {
			m[r] = e
		}
		out[source] = m
	}
	return out
}
