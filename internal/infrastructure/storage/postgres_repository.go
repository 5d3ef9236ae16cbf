package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
)

//go:embed schema.sql
var schema string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const productColumns = "id, brand, model, slug, COALESCE(price_range, ''), is_trending, created_at, updated_at"

// PostgresRepository persists products, reviews, translations, audio assets
// and query logs into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var (
	_ ports.ProductRepository    = (*PostgresRepository)(nil)
	_ ports.ReviewRepository     = (*PostgresRepository)(nil)
	_ ports.QueryLogRepository   = (*PostgresRepository)(nil)
	_ ports.AudioAssetRepository = (*PostgresRepository)(nil)
	_ ports.HealthChecker        = (*PostgresRepository)(nil)
)

// Open connects to Postgres through lib/pq.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates missing tables.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping runs a trivial query.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return errors.New("postgres is not configured")
	}
	var ok int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&ok); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// GetBySlug returns the product or nil when the slug is unknown.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := getBySlugQuery(slug).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build product query: %w", err)
	}

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", slug, err)
	}
	return &product, nil
}

// UpsertBySlug inserts the product or refreshes brand and model of an existing one.
func (r *PostgresRepository) UpsertBySlug(ctx context.Context, product domain.Product) (int64, error) {
	if r.db == nil {
		return 0, errors.New("postgres is not configured")
	}

	query, args, err := upsertProductQuery(product).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build product upsert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert product %s: %w", product.Slug, err)
	}
	return id, nil
}

// ListTrending returns the most recently updated trending products.
func (r *PostgresRepository) ListTrending(ctx context.Context, limit int) ([]domain.Product, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := listTrendingQuery(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build trending query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trending: %w", err)
	}

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return products, nil
}

// CreateReview stores a synthesized review and returns its id.
func (r *PostgresRepository) CreateReview(ctx context.Context, productID int64, languageCode string, review domain.SynthesizedReview) (int64, error) {
	if r.db == nil {
		return 0, errors.New("postgres is not configured")
	}

	builder, err := createReviewQuery(productID, languageCode, review)
	if err != nil {
		return 0, err
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build review insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert review: %w", err)
	}
	return id, nil
}

// UpsertTranslation stores the localized summary of a review.
func (r *PostgresRepository) UpsertTranslation(ctx context.Context, translation domain.ReviewTranslation) error {
	if r.db == nil {
		return nil
	}

	query, args, err := upsertTranslationQuery(translation).ToSql()
	if err != nil {
		return fmt.Errorf("build translation upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert translation: %w", err)
	}
	return nil
}

// InsertLog appends a query log row.
func (r *PostgresRepository) InsertLog(ctx context.Context, entry domain.QueryLog) error {
	if r.db == nil {
		return nil
	}

	query, args, err := insertLogQuery(entry).ToSql()
	if err != nil {
		return fmt.Errorf("build query log insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// SaveAsset upserts narrated audio by key.
func (r *PostgresRepository) SaveAsset(ctx context.Context, asset domain.AudioAsset) error {
	if r.db == nil {
		return errors.New("postgres is not configured")
	}

	query, args, err := saveAssetQuery(asset).ToSql()
	if err != nil {
		return fmt.Errorf("build audio asset upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert audio asset: %w", err)
	}
	return nil
}

// GetAsset loads narrated audio or nil when the key is unknown.
func (r *PostgresRepository) GetAsset(ctx context.Context, key string) (*domain.AudioAsset, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := getAssetQuery(key).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audio asset query: %w", err)
	}

	var (
		asset    domain.AudioAsset
		reviewID sql.NullInt64
		duration sql.NullFloat64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&asset.AudioKey,
		&reviewID,
		&asset.LanguageCode,
		&asset.MimeType,
		&asset.Data,
		&asset.ByteSize,
		&duration,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audio asset %s: %w", key, err)
	}
	if reviewID.Valid {
		asset.ReviewID = &reviewID.Int64
	}
	if duration.Valid {
		asset.DurationSeconds = &duration.Float64
	}
	return &asset, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Brand, &p.Model, &p.Slug, &p.PriceRange, &p.IsTrending, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getBySlugQuery(slug string) sq.SelectBuilder {
	return psql.Select(productColumns).
		From("products").
		Where(sq.Eq{"slug": slug}).
		Limit(1)
}

func upsertProductQuery(p domain.Product) sq.InsertBuilder {
	return psql.Insert("products").
		Columns("brand", "model", "slug", "price_range", "is_trending").
		Values(p.Brand, p.Model, p.Slug, nullString(p.PriceRange), p.IsTrending).
		Suffix(`ON CONFLICT (slug) DO UPDATE
              SET brand = EXCLUDED.brand,
                  model = EXCLUDED.model,
                  updated_at = NOW()
              RETURNING id`)
}

func listTrendingQuery(limit int) sq.SelectBuilder {
	if limit <= 0 {
		limit = 10
	}
	return psql.Select(productColumns).
		From("products").
		Where(sq.Eq{"is_trending": true}).
		OrderBy("updated_at DESC").
		Limit(uint64(limit))
}

type storedSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

func createReviewQuery(productID int64, languageCode string, review domain.SynthesizedReview) (sq.InsertBuilder, error) {
	sources := make([]storedSource, 0, len(review.Sources))
	for _, s := range review.Sources {
		sources = append(sources, storedSource{Title: s.Title, URL: s.URL, Type: string(s.Type)})
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("encode review sources: %w", err)
	}

	return psql.Insert("reviews").
		Columns("product_id", "language_code", "verdict", "confidence_score", "summary", "tldr", "pros", "cons", "best_for", "sources").
		Values(
			productID,
			languageCode,
			string(review.Verdict),
			review.ConfidenceScore,
			review.Summary,
			review.TLDR,
			pq.Array(review.Pros),
			pq.Array(review.Cons),
			nullString(review.BestFor),
			string(encoded),
		).
		Suffix("RETURNING id"), nil
}

func upsertTranslationQuery(t domain.ReviewTranslation) sq.InsertBuilder {
	return psql.Insert("review_translations").
		Columns("review_id", "language_code", "summary", "tldr", "audio_url").
		Values(t.ReviewID, t.LanguageCode, t.Summary, t.TLDR, nullString(t.AudioURL)).
		Suffix(`ON CONFLICT (review_id, language_code) DO UPDATE
              SET summary = EXCLUDED.summary,
                  tldr = EXCLUDED.tldr,
                  audio_url = EXCLUDED.audio_url,
                  updated_at = NOW()`)
}

func insertLogQuery(entry domain.QueryLog) sq.InsertBuilder {
	var productID any
	if entry.ProductID != nil {
		productID = *entry.ProductID
	}
	return psql.Insert("query_logs").
		Columns("ip_hash", "transcript", "language_code", "intent", "product_id", "cache_hit", "latency_ms").
		Values(
			entry.IPHash,
			nullString(entry.Transcript),
			nullString(entry.LanguageCode),
			nullString(entry.Intent),
			productID,
			entry.CacheHit,
			entry.LatencyMs,
		)
}

func saveAssetQuery(asset domain.AudioAsset) sq.InsertBuilder {
	var reviewID, duration any
	if asset.ReviewID != nil {
		reviewID = *asset.ReviewID
	}
	if asset.DurationSeconds != nil {
		duration = *asset.DurationSeconds
	}
	byteSize := asset.ByteSize
	if byteSize == 0 {
		byteSize = len(asset.Data)
	}
	return psql.Insert("review_audio_assets").
		Columns("audio_key", "review_id", "language_code", "mime_type", "audio_data", "byte_size", "duration_seconds").
		Values(asset.AudioKey, reviewID, asset.LanguageCode, asset.MimeType, asset.Data, byteSize, duration).
		Suffix(`ON CONFLICT (audio_key) DO UPDATE
              SET mime_type = EXCLUDED.mime_type,
                  audio_data = EXCLUDED.audio_data,
                  byte_size = EXCLUDED.byte_size,
                  duration_seconds = EXCLUDED.duration_seconds`)
}

func getAssetQuery(key string) sq.SelectBuilder {
	return psql.Select("audio_key", "review_id", "language_code", "mime_type", "audio_data", "byte_size", "duration_seconds").
		From("review_audio_assets").
		Where(sq.Eq{"audio_key": key}).
		Limit(1)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
