package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

var resources = []string{"customers", "products", "orders", "inventory"}

func openMemory(t *testing.T, b *MemoryBackend) *Store {
	t.Helper()
	s, err := Open(context.Background(), b, DefaultDocument("shopify", resources), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestOpen_MissingDocumentUsesDefaults(t *testing.T) {
	s := openMemory(t, &MemoryBackend{})

	for _, r := range resources {
		assert.Nil(t, s.Get("shopify", r))
	}
	assert.Len(t, s.Watermarks(), 4)
}

func TestSetThenGet(t *testing.T) {
	b := &MemoryBackend{}
	s := openMemory(t, b)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))

	s.Set(context.Background(), "shopify", "orders", ts)

	got := s.Get("shopify", "orders")
	require.NotNil(t, got)
	assert.True(t, got.Equal(ts))
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 1, b.Saves())
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := openMemory(t, &MemoryBackend{})
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s.Set(context.Background(), "shopify", "orders", ts)

	got := s.Get("shopify", "orders")
	*got = got.Add(time.Hour)

	assert.True(t, s.Get("shopify", "orders").Equal(ts))
}

func TestPersistedFormat(t *testing.T) {
	b := &MemoryBackend{}
	s := openMemory(t, b)
	s.Set(context.Background(), "shopify", "customers", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	data, err := b.Load(context.Background())
	require.NoError(t, err)

	var raw map[string]map[string]map[string]*string
	require.NoError(t, json.Unmarshal(data, &raw))
	require.NotNil(t, raw["shopify"]["customers"]["lastSync"])
	assert.Equal(t, "2024-01-02T03:04:05Z", *raw["shopify"]["customers"]["lastSync"])
	assert.Contains(t, raw["shopify"], "orders")
	assert.Nil(t, raw["shopify"]["orders"]["lastSync"])
}

func TestReopenSeesPersistedState(t *testing.T) {
	b := &MemoryBackend{}
	s := openMemory(t, b)
	ts := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	s.Set(context.Background(), "shopify", "products", ts)

	reopened := openMemory(t, b)
	require.NotNil(t, reopened.Get("shopify", "products"))
	assert.True(t, reopened.Get("shopify", "products").Equal(ts))
	assert.Nil(t, reopened.Get("shopify", "orders"))
}

func TestOpen_CorruptDocumentFallsBackToDefaults(t *testing.T) {
	b := &MemoryBackend{}
	require.NoError(t, b.Save(context.Background(), []byte("{not json")))

	s := openMemory(t, b)
	assert.Nil(t, s.Get("shopify", "customers"))
	assert.Len(t, s.Watermarks(), 4)
}

type failingLoad struct{ MemoryBackend }

func (f *failingLoad) Load(context.Context) ([]byte, error) {
	return nil, errors.New("bucket unreachable")
}

func TestOpen_LoadErrorIsPersistenceError(t *testing.T) {
	_, err := Open(context.Background(), &failingLoad{}, nil, nil)
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypePersistence))
}

func TestSet_PersistFailureKeepsMemoryAndFlushRetries(t *testing.T) {
	b := &MemoryBackend{}
	s := openMemory(t, b)

	var reported []error
	s.OnPersistError = func(err error) { reported = append(reported, err) }

	b.SetSaveErr(errors.New("disk full"))
	ts := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	s.Set(context.Background(), "shopify", "orders", ts)

	require.Len(t, reported, 1)
	assert.True(t, synerrors.IsType(reported[0], synerrors.ErrorTypePersistence))
	assert.True(t, s.Get("shopify", "orders").Equal(ts))

	err := s.Flush(context.Background())
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypePersistence))

	b.SetSaveErr(nil)
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, b.Saves())

	// Nothing pending, so nothing is written.
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, b.Saves())
}

func TestSnapshotRestore(t *testing.T) {
	s := openMemory(t, &MemoryBackend{})
	orig := time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)
	s.Set(context.Background(), "shopify", "orders", orig)

	snap := s.Snapshot("shopify")
	s.Set(context.Background(), "shopify", "orders", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	s.Set(context.Background(), "shopify", "customers", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	s.Restore(context.Background(), "shopify", snap)
	assert.True(t, s.Get("shopify", "orders").Equal(orig))
	assert.Nil(t, s.Get("shopify", "customers"))
}

func TestFileBackend_AtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "sync_state.json")
	b := NewFileBackend(path)

	data, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.Save(context.Background(), []byte(`{"a":1}`)))
	require.NoError(t, b.Save(context.Background(), []byte(`{"a":2}`)))

	data, err = b.Load(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestNewBackend(t *testing.T) {
	b, closeFn, err := NewBackend(context.Background(), BackendConfig{Type: BackendFile, Path: "x.json"})
	require.NoError(t, err)
	assert.Equal(t, "file", b.Name())
	assert.NoError(t, closeFn())

	b, _, err = NewBackend(context.Background(), BackendConfig{})
	require.NoError(t, err)
	assert.Equal(t, "sync_state.json", b.(*FileBackend).Path)

	_, _, err = NewBackend(context.Background(), BackendConfig{Type: BackendS3})
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))

	_, _, err = NewBackend(context.Background(), BackendConfig{Type: "etcd"})
	assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeConfig))
}
