package storage

import (
	"context"
	"strings"
	"testing"

	"sunkelo/internal/domain"
)

func TestGetBySlugQuery(t *testing.T) {
	t.Parallel()

	query, args, err := getBySlugQuery("iphone-16").ToSql()
	if err != nil {
		t.Fatalf("ToSql error: %v", err)
	}
	want := "SELECT " + productColumns + " FROM products WHERE slug = $1 LIMIT 1"
	if query != want {
		t.Fatalf("unexpected query:\n%s\nwant:\n%s", query, want)
	}
	if len(args) != 1 || args[0] != "iphone-16" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestUpsertProductQuery(t *testing.T) {
	t.Parallel()

	query, args, err := upsertProductQuery(domain.Product{Brand: "Apple", Model: "iPhone 16", Slug: "apple-iphone-16"}).ToSql()
	if err != nil {
		t.Fatalf("ToSql error: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO products") || !strings.Contains(query, "ON CONFLICT (slug)") || !strings.HasSuffix(query, "RETURNING id") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 5 || args[2] != "apple-iphone-16" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestListTrendingQueryDefaultsLimit(t *testing.T) {
	t.Parallel()

	query, args, err := listTrendingQuery(0).ToSql()
	if err != nil {
		t.Fatalf("ToSql error: %v", err)
	}
	if !strings.Contains(query, "WHERE is_trending = $1") || !strings.HasSuffix(query, "ORDER BY updated_at DESC LIMIT 10") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 1 || args[0] != true {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestCreateReviewQueryEncodesSources(t *testing.T) {
	t.Parallel()

	review := domain.SynthesizedReview{
		Verdict:         domain.VerdictBuy,
		Pros:            []string{"Battery"},
		Cons:            []string{"Price"},
		Summary:         "summary",
		TLDR:            "tldr",
		ConfidenceScore: 0.8,
		Sources: []domain.ReviewSource{
			{Title: "Review", URL: "https://www.gsmarena.com/r.php", Type: domain.SourceBlog},
		},
	}

	builder, err := createReviewQuery(7, "en-IN", review)
	if err != nil {
		t.Fatalf("createReviewQuery error: %v", err)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		t.Fatalf("ToSql error: %v", err)
	}
	if !strings.HasPrefix(query, "INSERT INTO reviews") || !strings.HasSuffix(query, "RETURNING id") {
		t.Fatalf("unexpected query: %s", query)
	}
	if len(args) != 10 {
		t.Fatalf("expected 10 args, got %d", len(args))
	}
	if args[2] != "buy" {
		t.Fatalf("verdict should be stored as text, got %v", args[2])
	}
	if args[9] != `[{"title":"Review","url":"https://www.gsmarena.com/r.php","type":"blog"}]` {
		t.Fatalf("unexpected sources json: %v", args[9])
	}
}

func TestInsertLogQueryNullsMissingProduct(t *testing.T) {
	t.Parallel()

	_, args, err := insertLogQuery(domain.QueryLog{IPHash: "abc", Intent: "unsupported"}).ToSql()
	if err != nil {
		t.Fatalf("ToSql error: %v", err)
	}
	if args[4] != nil {
		t.Fatalf("missing product id should be NULL, got %v", args[4])
	}
}

func TestSaveAssetQueryDerivesByteSize(t *testing.T) {
	t.Parallel()

	_, args, err := saveAssetQuery(domain.AudioAsset{AudioKey: "k", LanguageCode: "hi-IN", MimeType: "audio/wav", Data: []byte("RIFF")}).ToSql()
	if err != nil {
		t.Fatalf("ToSql error: %v", err)
	}
	if args[5] != 4 {
		t.Fatalf("expected byte size 4, got %v", args[5])
	}
}

func TestRepositoryWithoutDatabase(t *testing.T) {
	t.Parallel()

	repo := NewPostgresRepository(nil)
	ctx := context.Background()

	if product, err := repo.GetBySlug(ctx, "x"); product != nil || err != nil {
		t.Fatalf("expected nil product without db, got %v %v", product, err)
	}
	if _, err := repo.UpsertBySlug(ctx, domain.Product{Slug: "x"}); err == nil {
		t.Fatalf("expected upsert error without db")
	}
	if err := repo.Ping(ctx); err == nil {
		t.Fatalf("expected ping error without db")
	}
}
