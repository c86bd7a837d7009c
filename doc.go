// Package shopsync incrementally copies Shopify store data into a data
// warehouse.
//
// Each run syncs customers, products, orders and inventory in that order.
// A resource is fetched from its last committed watermark, mapped into flat
// warehouse rows and written table by table. The watermark advances only
// after every table write of the resource committed, so delivery is
// at-least-once: a failed run is picked up from the same point by the next
// one.
//
// # Architecture
//
//	cmd/shopsync        - CLI: run, sync, backfill, state, config, version
//	internal/engine     - resource orchestrator, run coordinator, backfill
//	internal/scheduler  - interval trigger with overlap suppression
//	pkg/shopify         - Admin REST API fetcher (rate limited, Link aware)
//	pkg/paginator       - trailing-id and link-token pagination
//	pkg/mapper          - per-resource row mapping with decimal money
//	pkg/warehouse       - Snowflake, PostgreSQL, MySQL and BigQuery writers
//	pkg/checkpoint      - watermark store on file, S3, GCS or MongoDB
//	pkg/retry           - linear backoff retries
//	pkg/notify          - run result events on Kafka
//	pkg/config          - viper configuration with .env support
//	pkg/logger          - zap structured logging
//	pkg/metrics         - Prometheus metrics and process stats
//	pkg/observability   - OpenTelemetry tracing
//
// # Quick Start
//
//	export SHOPIFY_SHOP_NAME=my-store
//	export SHOPIFY_ACCESS_TOKEN=shpat_...
//	export SNOWFLAKE_ACCOUNT=xy12345
//	export SNOWFLAKE_USERNAME=loader
//	export SNOWFLAKE_PASSWORD=...
//	shopsync run
//
// Re-sync a window without moving the scheduled watermarks:
//
//	shopsync backfill --start 2024-01-01 --resources orders
//
// # Configuration
//
// Settings come from defaults, an optional YAML file (--config) and the
// environment with the SHOPSYNC_ prefix, in increasing precedence.
// ${VAR_NAME} references inside the YAML file are expanded.
package shopsync
