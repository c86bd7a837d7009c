package checkpoint

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/api/option"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

// Backend types.
const (
	BackendFile   = "file"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// BackendConfig selects and configures a persistence backend.
type BackendConfig struct {
	Type string `mapstructure:"type" yaml:"type"`

	// file
	Path string `mapstructure:"path" yaml:"path"`

	// s3 and gcs
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Key      string `mapstructure:"key" yaml:"key"`
	Region   string `mapstructure:"region" yaml:"region"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`

	// mongo
	URI        string `mapstructure:"uri" yaml:"uri"`
	Database   string `mapstructure:"database" yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	DocumentID string `mapstructure:"document_id" yaml:"document_id"`
}

// NewBackend builds the configured backend. The returned close function
// releases any client the backend holds and is never nil.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Type {
	case "", BackendFile:
		path := cfg.Path
		if path == "" {
			path = "sync_state.json"
		}
		return NewFileBackend(path), noop, nil

	case BackendMemory:
		return &MemoryBackend{}, noop, nil

	case BackendS3:
		if cfg.Bucket == "" || cfg.Key == "" {
			return nil, noop, synerrors.New(synerrors.ErrorTypeConfig, "s3 checkpoint backend requires bucket and key")
		}
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, noop, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to load AWS config")
		}
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		return &S3Backend{Client: client, Bucket: cfg.Bucket, Key: cfg.Key}, noop, nil

	case BackendGCS:
		if cfg.Bucket == "" || cfg.Key == "" {
			return nil, noop, synerrors.New(synerrors.ErrorTypeConfig, "gcs checkpoint backend requires bucket and key")
		}
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, noop, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to create GCS client")
		}
		return &GCSBackend{Client: client, Bucket: cfg.Bucket, Object: cfg.Key}, client.Close, nil

	case BackendMongo:
		if cfg.URI == "" {
			return nil, noop, synerrors.New(synerrors.ErrorTypeConfig, "mongo checkpoint backend requires uri")
		}
		db, coll, id := cfg.Database, cfg.Collection, cfg.DocumentID
		if db == "" {
			db = "shopsync"
		}
		if coll == "" {
			coll = "sync_state"
		}
		if id == "" {
			id = "default"
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
		if err != nil {
			return nil, noop, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to connect to MongoDB")
		}
		closeFn := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		}
		return &MongoBackend{Collection: client.Database(db).Collection(coll), ID: id}, closeFn, nil

	default:
		return nil, noop, synerrors.Newf(synerrors.ErrorTypeConfig, "unknown checkpoint backend %q", cfg.Type)
	}
}
