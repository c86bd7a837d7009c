package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FileBackend stores the document in a local JSON file. Writes go to a
// temporary file in the same directory which is synced and renamed over the
// target, so readers see either the old or the new document.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (b *FileBackend) Name() string { return "file" }

func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (b *FileBackend) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.Path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// MemoryBackend keeps the document in memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	SaveErr error
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Load(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil, nil
	}
	return append([]byte(nil), b.data...), nil
}

func (b *MemoryBackend) Save(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.data = append([]byte(nil), data...)
	b.saves++
	return nil
}

// Saves reports how many saves succeeded.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// SetSaveErr makes subsequent saves fail with err, or succeed when nil.
func (b *MemoryBackend) SetSaveErr(err error) {
	b.mu.Lock()
	b.SaveErr = err
	b.mu.Unlock()
}

// S3API is the part of the S3 client the backend uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Backend stores the document as a single S3 object.
type S3Backend struct {
	Client S3API
	Bucket string
	Key    string
}

func (b *S3Backend) Name() string { return "s3" }

func (b *S3Backend) Load(ctx context.Context) ([]byte, error) {
	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", b.Bucket, b.Key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *S3Backend) Save(ctx context.Context, data []byte) error {
	_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.Bucket),
		Key:         aws.String(b.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.Bucket, b.Key, err)
	}
	return nil
}

// GCSBackend stores the document as a single Cloud Storage object.
type GCSBackend struct {
	Client *storage.Client
	Bucket string
	Object string
}

func (b *GCSBackend) Name() string { return "gcs" }

func (b *GCSBackend) Load(ctx context.Context) ([]byte, error) {
	r, err := b.Client.Bucket(b.Bucket).Object(b.Object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", b.Bucket, b.Object, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (b *GCSBackend) Save(ctx context.Context, data []byte) error {
	w := b.Client.Bucket(b.Bucket).Object(b.Object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", b.Bucket, b.Object, err)
	}
	// The object only becomes visible on a successful Close.
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit gs://%s/%s: %w", b.Bucket, b.Object, err)
	}
	return nil
}

// MongoBackend stores the document in one MongoDB document keyed by ID.
type MongoBackend struct {
	Collection *mongo.Collection
	ID         string
}

type mongoState struct {
	ID   string `bson:"_id"`
	Data string `bson:"data"`
}

func (b *MongoBackend) Name() string { return "mongo" }

func (b *MongoBackend) Load(ctx context.Context) ([]byte, error) {
	var st mongoState
	err := b.Collection.FindOne(ctx, bson.M{"_id": b.ID}).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find state %q: %w", b.ID, err)
	}
	return []byte(st.Data), nil
}

func (b *MongoBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.Collection.ReplaceOne(ctx,
		bson.M{"_id": b.ID},
		mongoState{ID: b.ID, Data: string(data)},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace state %q: %w", b.ID, err)
	}
	return nil
}
