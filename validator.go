package identify

import (
	"context"
	"log/slog"
	"math"

	"github.com/partfinder/identify/imaging"
	"github.com/partfinder/identify/models"
	"github.com/partfinder/identify/store"
)

// PageFetcher abstracts candidate page and image retrieval so tests can
// count the network calls a validation issues.
type PageFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Validator scores a single candidate URL and decides acceptance. Results
// are cached per URL in the TTL store so repeated lookups across requests
// cost at most one fetch per day.
type Validator struct {
	config   Config
	fetcher  PageFetcher
	embedder imaging.Embedder
	cache    *store.Store
}

// NewValidator creates a Validator. embedder may be nil when no visual
// backend exists at all; visual similarity is then null for every candidate.
func NewValidator(config Config, fetcher PageFetcher, embedder imaging.Embedder, cache *store.Store) *Validator {
	return &Validator{config: config, fetcher: fetcher, embedder: embedder, cache: cache}
}

// Validate scores one candidate. photoVec is the query photo's embedding,
// computed once per sourcing request; nil means no visual comparison is
// possible. Validate never returns an error: every failure mode is a
// ValidationResult with a reason.
func (v *Validator) Validate(ctx context.Context, cand models.ProductCandidate, photoVec []float64) models.ValidationResult {
	if cached, ok := v.cache.Get(cand.URL); ok {
		validationCacheHits.Inc()
		cached.Candidate = cand
		return cached
	}
	validationCacheMisses.Inc()

	result := v.validate(ctx, cand, photoVec)
	v.cache.Save(cand.URL, result)
	validationResults.WithLabelValues(string(result.Reason)).Inc()
	return result
}

func (v *Validator) validate(ctx context.Context, cand models.ProductCandidate, photoVec []float64) models.ValidationResult {
	result := models.ValidationResult{Candidate: cand}

	if !IsStructurallyValid(cand.URL) {
		result.Reason = models.ReasonInvalidURL
		return result
	}

	score := v.config.UnknownDomainScore
	if IsTrustedMarketplace(cand.SourceDomain) {
		score = v.config.TrustedDomainScore
	}

	pageText, err := v.fetcher.FetchHTML(ctx, cand.URL)
	if err != nil {
		slog.Debug("candidate page unreachable", "url", cand.URL, "error", err)
		result.Reason = models.ReasonFetchError
		return result
	}

	if LooksLikeProductPage(pageText) {
		score += v.config.ProductPageScore
	}
	if HasPricePattern(pageText) {
		score += v.config.PriceScore
	}
	if HasSKUPattern(pageText) {
		score += v.config.SKUScore
	}

	imageURL := ExtractProductImageURL(pageText, cand.URL)
	if imageURL == "" {
		imageURL = cand.ImageURL
	}
	result.ProductImageURL = imageURL

	visualScore := 0
	if imageURL != "" && photoVec != nil {
		if sim, ok := v.visualSimilarity(ctx, imageURL, photoVec); ok {
			result.VisualSimilarity = &sim
			visualScore = v.visualScoreFor(sim)
		}
	}

	result.Score = score + visualScore

	// A candidate cannot pass on text signal alone once a photo comparison
	// is possible: the total must clear the threshold AND the visual
	// contribution must clear its floor. The floor is waived only when no
	// comparison was possible at all and the policy allows text-only matches.
	visualFloorMet := visualScore >= v.config.VisualScoreFloor
	if v.config.AllowTextOnlyMatches && (imageURL == "" || photoVec == nil) {
		visualFloorMet = true
	}
	result.Valid = result.Score >= v.config.ValidScore && visualFloorMet

	switch {
	case result.Valid:
		result.Reason = models.ReasonOK
	case !visualFloorMet:
		result.Reason = models.ReasonLowSimilarity
	default:
		result.Reason = models.ReasonLowScore
	}
	return result
}

// visualSimilarity downloads the candidate's product image, embeds it and
// compares against the query photo. Any failure degrades to "no signal".
func (v *Validator) visualSimilarity(ctx context.Context, imageURL string, photoVec []float64) (float64, bool) {
	if v.embedder == nil || !v.embedder.Available() {
		return 0, false
	}
	data, err := v.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		slog.Debug("product image fetch failed", "url", imageURL, "error", err)
		return 0, false
	}
	vec, err := v.embedder.Embed(ctx, data)
	if err != nil {
		slog.Debug("product image embed failed", "url", imageURL, "error", err)
		return 0, false
	}
	sim, ok := imaging.Cosine(photoVec, vec)
	return sim, ok
}

// visualScoreFor maps a cosine similarity to its score contribution via a
// monotonic step function.
func (v *Validator) visualScoreFor(sim float64) int {
	switch {
	case sim >= 0.45:
		return 50
	case sim >= 0.30:
		return int(math.Round(25 + (sim-0.30)/0.15*25))
	case sim >= 0.20:
		return 10
	default:
		return 0
	}
}
