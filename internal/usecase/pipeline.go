package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sunkelo/internal/domain"
	"sunkelo/internal/metrics"
	"sunkelo/internal/ports"
	"sunkelo/internal/stream"
)

// MinNormalizedSources is the fewest usable sources worth synthesizing from.
const MinNormalizedSources = 2

const outcomeOK = "ok"

// PipelineDeps wires all driven adapters into the query pipeline.
type PipelineDeps struct {
	Rate           *RateGovernor
	SpeechToText   ports.SpeechToText
	Languages      *QueryLanguageDetector
	Entities       *EntityResolver
	Cache          ports.ReviewCache
	Source         ports.SourceAcquirer
	Normalizer     *SourceNormalizer
	Synthesizer    *ReviewSynthesizer
	Localizer      *Localizer
	Products       ports.ProductRepository
	Reviews        ports.ReviewRepository
	QueryLogs      ports.QueryLogRepository
	Trending       ports.TrendingSource
	Messages       *ErrorMessages
	EvidencePolicy func() domain.EvidencePolicy
	Metrics        *metrics.Pipeline
	Logger         *slog.Logger
}

// Pipeline answers one product query as an ordered event stream.
type Pipeline struct {
	rate           *RateGovernor
	stt            ports.SpeechToText
	languages      *QueryLanguageDetector
	entities       *EntityResolver
	cache          ports.ReviewCache
	source         ports.SourceAcquirer
	normalizer     *SourceNormalizer
	synthesizer    *ReviewSynthesizer
	localizer      *Localizer
	products       ports.ProductRepository
	reviews        ports.ReviewRepository
	queryLogs      ports.QueryLogRepository
	trending       ports.TrendingSource
	messages       *ErrorMessages
	evidencePolicy func() domain.EvidencePolicy
	metrics        *metrics.Pipeline
	logger         *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	policy := deps.EvidencePolicy
	if policy == nil {
		policy = func() domain.EvidencePolicy { return domain.EvidencePolicy{} }
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	languages := deps.Languages
	if languages == nil {
		languages = NewQueryLanguageDetector(nil, logger)
	}
	normalizer := deps.Normalizer
	if normalizer == nil {
		normalizer = NewSourceNormalizer(nil, logger)
	}

	return &Pipeline{
		rate:           deps.Rate,
		stt:            deps.SpeechToText,
		languages:      languages,
		entities:       deps.Entities,
		cache:          deps.Cache,
		source:         deps.Source,
		normalizer:     normalizer,
		synthesizer:    deps.Synthesizer,
		localizer:      deps.Localizer,
		products:       deps.Products,
		reviews:        deps.Reviews,
		queryLogs:      deps.QueryLogs,
		trending:       deps.Trending,
		messages:       deps.Messages,
		evidencePolicy: policy,
		metrics:        deps.Metrics,
		logger:         logger,
	}
}

// queryTrace accumulates what the query log and metrics need.
type queryTrace struct {
	started    time.Time
	callerHash string
	transcript string
	language   string
	intent     domain.Intent
	productID  *int64
	cacheHit   bool
	remaining  int64
	outcome    string
}

// Run drives one query. Every path ends with exactly one done event; errors
// that reach the caller are already on the stream, so Run only returns
// errors it could not express there.
func (p *Pipeline) Run(ctx context.Context, in domain.QueryInput, w *stream.Writer) error {
	trace := &queryTrace{
		started:    time.Now(),
		callerHash: in.CallerHash,
		language:   domain.BaseLanguage,
		outcome:    string(domain.ErrUnknown),
	}
	logger := p.logger.With("trace_id", uuid.NewString())
	defer p.finish(ctx, trace, logger)

	start := time.Now()
	decision, err := p.checkRate(ctx, in.CallerHash)
	p.metrics.ObserveStage("rate_limit", start)
	if err != nil {
		logger.Error("rate check failed", "error", err)
		return p.fail(ctx, w, trace, domain.ErrServiceUnavailable, stream.ErrorPayload{})
	}
	if !decision.Allowed {
		remaining, resetAt := decision.Remaining, decision.ResetAt
		return p.fail(ctx, w, trace, domain.ErrRateLimited, stream.ErrorPayload{Remaining: &remaining, ResetAt: &resetAt})
	}
	trace.remaining = decision.Remaining

	if in.InputError != nil {
		trace.outcome = string(domain.ErrInvalidInput)
		w.Error(stream.ErrorPayload{Code: domain.ErrInvalidInput, Message: in.InputError.Error()})
		w.Done(stream.DonePayload{Remaining: trace.remaining})
		return nil
	}

	w.Status(stream.StatusListening, nil)

	start = time.Now()
	if in.HasAudio() {
		if p.stt == nil {
			return p.fail(ctx, w, trace, domain.ErrSTTFailed, stream.ErrorPayload{})
		}
		transcription, err := p.stt.Transcribe(ctx, in.Audio)
		if err != nil {
			logger.Warn("transcription failed", "error", err)
			return p.fail(ctx, w, trace, domain.ErrSTTFailed, stream.ErrorPayload{})
		}
		trace.transcript = transcription.Transcript
		trace.language = transcription.LanguageCode
	} else {
		trace.transcript = strings.TrimSpace(in.Text)
		trace.language = p.languages.Detect(ctx, trace.transcript)
	}
	p.metrics.ObserveStage("understand", start)

	w.Status(stream.StatusUnderstood, map[string]any{
		"transcript": trace.transcript,
		"language":   trace.language,
	})

	if p.entities == nil {
		return p.fail(ctx, w, trace, domain.ErrServiceUnavailable, stream.ErrorPayload{})
	}
	start = time.Now()
	entity, err := p.entities.Extract(ctx, trace.transcript)
	p.metrics.ObserveStage("extract_entity", start)
	if err != nil {
		logger.Error("entity extraction failed", "error", err)
		return p.fail(ctx, w, trace, domain.ErrServiceUnavailable, stream.ErrorPayload{})
	}
	trace.intent = entity.Intent
	if !entity.Supported() {
		return p.fail(ctx, w, trace, domain.ErrNotAProduct, stream.ErrorPayload{})
	}

	slug := p.entities.ResolveCanonicalSlug(ctx, trace.transcript, *entity.Slug)
	productName := entity.Name()
	if productName == "" {
		productName = domain.SlugToProductName(slug)
	}
	logger = logger.With("slug", slug)

	if hit := p.lookupLocalized(ctx, slug, trace.language, logger); hit != nil {
		trace.cacheHit = true
		p.emitReview(w, domain.LocalizedReview{
			Review:          hit.Review,
			LanguageCode:    trace.language,
			TTSLanguageCode: firstNonBlank(hit.TTSLanguageCode, domain.TTSLanguageFor(trace.language)),
			AudioURL:        hit.AudioURL,
			DurationSeconds: hit.DurationSeconds,
		})
		trace.outcome = outcomeOK
		w.Done(stream.DonePayload{Cached: true, Remaining: trace.remaining})
		return nil
	}

	if base := p.lookupReview(ctx, slug, logger); base != nil {
		trace.cacheHit = true
		if base.ProductID > 0 {
			id := base.ProductID
			trace.productID = &id
		}
		localized := p.localize(ctx, LocalizeInput{
			ReviewID:     base.ReviewID,
			ProductSlug:  slug,
			ProductName:  productName,
			Review:       base.SynthesizedReview,
			LanguageCode: trace.language,
		})
		p.emitReview(w, localized)
		p.storeLocalized(ctx, slug, localized, logger)
		trace.outcome = outcomeOK
		w.Done(stream.DonePayload{Cached: true, Remaining: trace.remaining})
		return nil
	}

	w.Status(stream.StatusSearching, map[string]any{
		"product":     productName,
		"productSlug": slug,
	})

	sources := p.CollectSources(ctx, productName)
	if len(sources) < MinNormalizedSources {
		logger.Info("not enough sources", "count", len(sources))
		return p.fail(ctx, w, trace, domain.ErrNoReviews, stream.ErrorPayload{Suggestions: p.suggestions(ctx, logger)})
	}

	evidence := CollectReviewEvidence(sources)
	if !HasEnoughUserReviewEvidence(evidence, p.evidencePolicy()) {
		logger.Info("insufficient user review evidence",
			"ecommerce_sources", evidence.EcommerceSourceCount,
			"signals", evidence.ReviewSignalCount,
		)
		return p.fail(ctx, w, trace, domain.ErrInsufficientUserReviewEvidence, stream.ErrorPayload{})
	}

	w.Status(stream.StatusAnalyzing, map[string]any{
		"product":     productName,
		"productSlug": slug,
		"sourceCount": len(sources),
	})

	if p.synthesizer == nil {
		return p.fail(ctx, w, trace, domain.ErrServiceUnavailable, stream.ErrorPayload{})
	}
	start = time.Now()
	review, err := p.synthesizer.Synthesize(ctx, productName, sources)
	p.metrics.ObserveStage("synthesize", start)
	if err != nil {
		logger.Error("synthesis failed", "error", err)
		return p.fail(ctx, w, trace, domain.ErrServiceUnavailable, stream.ErrorPayload{})
	}

	productID, reviewID := p.persist(ctx, entity, slug, productName, review, logger)
	if productID > 0 {
		trace.productID = &productID
	}
	if p.cache != nil {
		entry := domain.CachedReview{SynthesizedReview: review, ReviewID: reviewID, ProductID: productID}
		if err := p.cache.SetReview(ctx, slug, entry); err != nil {
			logger.Warn("review cache write failed", "error", err)
		}
	}
	p.entities.RememberAlias(ctx, trace.transcript, slug)

	localized := p.localize(ctx, LocalizeInput{
		ReviewID:     reviewID,
		ProductSlug:  slug,
		ProductName:  productName,
		Review:       review,
		LanguageCode: trace.language,
	})
	p.emitReview(w, localized)
	p.storeLocalized(ctx, slug, localized, logger)
	trace.outcome = outcomeOK
	w.Done(stream.DonePayload{Cached: false, Remaining: trace.remaining})
	return nil
}

// CollectSources acquires and normalizes evidence for a product. Acquisition
// failures yield no sources rather than an error.
func (p *Pipeline) CollectSources(ctx context.Context, productName string) []domain.NormalizedSource {
	if p.source == nil {
		return nil
	}

	start := time.Now()
	scraped, err := p.source.Acquire(ctx, productName)
	p.metrics.ObserveStage("acquire", start)
	if err != nil {
		p.logger.Warn("source acquisition failed", "product", productName, "error", err)
		return nil
	}

	start = time.Now()
	normalized, degraded := NormalizedValues(p.normalizer.Normalize(ctx, scraped))
	p.metrics.ObserveStage("normalize", start)
	for range degraded {
		p.metrics.Degraded("normalize")
	}
	return normalized
}

func (p *Pipeline) checkRate(ctx context.Context, callerHash string) (RateDecision, error) {
	if p.rate == nil {
		return RateDecision{Allowed: true}, nil
	}
	return p.rate.Check(ctx, callerHash)
}

func (p *Pipeline) fail(ctx context.Context, w *stream.Writer, trace *queryTrace, code domain.ErrorCode, payload stream.ErrorPayload) error {
	trace.outcome = string(code)
	payload.Code = code
	payload.Message = p.messages.Message(ctx, code, trace.language)
	w.Error(payload)
	w.Done(stream.DonePayload{Remaining: trace.remaining})
	return nil
}

func (p *Pipeline) emitReview(w *stream.Writer, localized domain.LocalizedReview) {
	w.Emit(stream.TypeReview, localized)
	if localized.AudioURL != nil {
		w.Emit(stream.TypeAudio, stream.AudioPayload{
			URL:             *localized.AudioURL,
			DurationSeconds: localized.DurationSeconds,
			LanguageCode:    localized.TTSLanguageCode,
		})
	}
}

func (p *Pipeline) localize(ctx context.Context, in LocalizeInput) domain.LocalizedReview {
	if p.localizer == nil {
		return domain.LocalizedReview{
			Review:          in.Review,
			LanguageCode:    in.LanguageCode,
			TTSLanguageCode: domain.TTSLanguageFor(in.LanguageCode),
		}
	}
	start := time.Now()
	defer p.metrics.ObserveStage("localize", start)
	return p.localizer.Localize(ctx, in)
}

func (p *Pipeline) lookupLocalized(ctx context.Context, slug, language string, logger *slog.Logger) *domain.CachedLocalized {
	if p.cache == nil {
		return nil
	}
	hit, err := p.cache.GetLocalized(ctx, slug, language)
	if err != nil {
		logger.Warn("localized cache read failed", "error", err)
		hit = nil
	}
	p.metrics.CacheLookup("localized", hit != nil)
	return hit
}

func (p *Pipeline) lookupReview(ctx context.Context, slug string, logger *slog.Logger) *domain.CachedReview {
	if p.cache == nil {
		return nil
	}
	hit, err := p.cache.GetReview(ctx, slug)
	if err != nil {
		logger.Warn("review cache read failed", "error", err)
		hit = nil
	}
	p.metrics.CacheLookup("review", hit != nil)
	return hit
}

func (p *Pipeline) storeLocalized(ctx context.Context, slug string, localized domain.LocalizedReview, logger *slog.Logger) {
	if p.cache == nil {
		return
	}
	entry := domain.CachedLocalized{
		Review:          localized.Review,
		AudioURL:        localized.AudioURL,
		DurationSeconds: localized.DurationSeconds,
		TTSLanguageCode: localized.TTSLanguageCode,
	}
	if err := p.cache.SetLocalized(ctx, slug, localized.LanguageCode, entry); err != nil {
		logger.Warn("localized cache write failed", "error", err)
	}
}

// persist stores the product and review. Failures leave ids at zero.
func (p *Pipeline) persist(ctx context.Context, entity domain.ExtractedEntity, slug, productName string, review domain.SynthesizedReview, logger *slog.Logger) (int64, int64) {
	if p.products == nil {
		return 0, 0
	}

	product := domain.Product{Slug: slug}
	if entity.Brand != nil {
		product.Brand = *entity.Brand
	}
	var model []string
	for _, part := range []*string{entity.Model, entity.Variant} {
		if part != nil {
			model = append(model, *part)
		}
	}
	product.Model = strings.Join(model, " ")
	if product.Brand == "" && product.Model == "" {
		product.Model = productName
	}

	productID, err := p.products.UpsertBySlug(ctx, product)
	if err != nil {
		logger.Warn("product upsert failed", "error", err)
		return 0, 0
	}
	if p.reviews == nil {
		return productID, 0
	}

	reviewID, err := p.reviews.CreateReview(ctx, productID, domain.BaseLanguage, review)
	if err != nil {
		logger.Warn("review insert failed", "product_id", productID, "error", err)
		return productID, 0
	}
	return productID, reviewID
}

func (p *Pipeline) suggestions(ctx context.Context, logger *slog.Logger) []string {
	if p.trending == nil {
		return DefaultSuggestions
	}
	names, err := p.trending.Trending(ctx)
	if err != nil {
		logger.Warn("trending lookup failed", "error", err)
	}
	if len(names) == 0 {
		return DefaultSuggestions
	}
	return names
}

func (p *Pipeline) finish(ctx context.Context, trace *queryTrace, logger *slog.Logger) {
	p.metrics.Request(trace.outcome)
	latency := time.Since(trace.started).Milliseconds()
	logger.Info("query finished", "outcome", trace.outcome, "cached", trace.cacheHit, "latency_ms", latency)

	if p.queryLogs == nil {
		return
	}
	entry := domain.QueryLog{
		IPHash:       trace.callerHash,
		Transcript:   trace.transcript,
		LanguageCode: trace.language,
		Intent:       string(trace.intent),
		ProductID:    trace.productID,
		CacheHit:     trace.cacheHit,
		LatencyMs:    latency,
	}
	if err := p.queryLogs.InsertLog(context.WithoutCancel(ctx), entry); err != nil {
		logger.Warn("query log insert failed", "error", err)
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
