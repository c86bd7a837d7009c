package warehouse

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

// BigQueryConfig holds BigQuery settings.
type BigQueryConfig struct {
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
	Dataset         string `mapstructure:"dataset" yaml:"dataset"`
	CredentialsFile string `mapstructure:"credentials_file" yaml:"credentials_file"`
}

// BigQueryWarehouse streams rows through the tabledata.insertAll API.
type BigQueryWarehouse struct {
	client  *bigquery.Client
	dataset string
	logger  *zap.Logger
}

// NewBigQuery creates a BigQuery client for cfg.
func NewBigQuery(ctx context.Context, cfg BigQueryConfig, logger *zap.Logger) (*BigQueryWarehouse, error) {
	if cfg.ProjectID == "" || cfg.Dataset == "" {
		return nil, synerrors.New(synerrors.ErrorTypeConfig, "bigquery project_id and dataset are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, synerrors.Wrap(err, synerrors.ErrorTypeConfig, "failed to create BigQuery client")
	}

	return &BigQueryWarehouse{
		client:  client,
		dataset: cfg.Dataset,
		logger:  logger.With(zap.String("component", "warehouse"), zap.String("warehouse", "bigquery")),
	}, nil
}

func (w *BigQueryWarehouse) Name() string { return "bigquery" }

func (w *BigQueryWarehouse) Close() error { return w.client.Close() }

// Connect returns a session sharing the client. BigQuery has no per-session
// connection to check out.
func (w *BigQueryWarehouse) Connect(_ context.Context) (Session, error) {
	return &bigQuerySession{w: w}, nil
}

type bigQuerySession struct {
	w *BigQueryWarehouse
}

func (s *bigQuerySession) InsertBatch(ctx context.Context, table string, rows []models.Row) error {
	cols, err := ValidateBatch(table, rows)
	if err != nil || len(rows) == 0 {
		return err
	}

	savers := make([]bigquery.ValueSaver, len(rows))
	for i, row := range rows {
		savers[i] = rowSaver{row: row, cols: cols}
	}

	inserter := s.w.client.Dataset(s.w.dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return synerrors.Wrap(err, synerrors.ErrorTypeTransport, "failed to stream rows to BigQuery").
			WithDetail("table", table)
	}
	s.w.logger.Debug("batch streamed", zap.String("table", table), zap.Int("rows", len(rows)))
	return nil
}

func (s *bigQuerySession) Close() error { return nil }

type rowSaver struct {
	row  models.Row
	cols []string
}

// Save implements bigquery.ValueSaver. An empty insert id lets BigQuery
// assign one.
func (r rowSaver) Save() (map[string]bigquery.Value, string, error) {
	out := make(map[string]bigquery.Value, len(r.cols))
	for _, c := range r.cols {
		out[c] = BigQueryValue(r.row[c])
	}
	return out, "", nil
}

// BigQueryValue converts a row value into one the BigQuery client encodes.
// Decimals are sent as their exact string form, which NUMERIC accepts.
func BigQueryValue(v any) bigquery.Value {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.UTC()
	default:
		return v
	}
}
