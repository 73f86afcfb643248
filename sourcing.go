package identify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/partfinder/identify/imaging"
	"github.com/partfinder/identify/models"
)

var tracer = otel.Tracer("github.com/partfinder/identify")

// Answerer abstracts the external web-search/answer capability.
type Answerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

// answerUnavailable is the user-renderable sentinel for a dead search
// capability. French, like the rest of the user-facing copy.
const answerUnavailable = "Recherche de fournisseurs indisponible pour le moment."

// Sourcer turns a product description into ranked, validated purchase links.
type Sourcer struct {
	config    Config
	answerer  Answerer
	validator *Validator
	embedder  imaging.Embedder
}

// NewSourcer creates a Sourcer. embedder may be nil (no visual ranking).
func NewSourcer(config Config, answerer Answerer, validator *Validator, embedder imaging.Embedder) *Sourcer {
	return &Sourcer{config: config, answerer: answerer, validator: validator, embedder: embedder}
}

func sourcingPrompt(query string, max int) string {
	return fmt.Sprintf(`Cherche des liens d'achat directs pour la pièce suivante : %s.

Instructions :
1. Privilégie Leroy Merlin, Castorama, Brico Dépôt, ManoMano, Mr.Bricolage, Cédéo, Union Matériaux, Au Forum du Bâtiment, Sikkens Solutions ou Amazon.
2. Uniquement des liens profonds vers des fiches produit précises — jamais de pages de catégorie, de recherche ou de liste.
3. Indique le prix constaté quand il est visible.

Réponds UNIQUEMENT avec un tableau JSON d'au plus %d produits, sans commentaire :
[{"nom": "...", "prix": "...", "url": "https://...", "image": "https://..."}]`, query, max)
}

// Source queries the answer capability, validates every parsed candidate
// concurrently and returns them ranked best-first. It never returns an
// error: capability failures become a sentinel report, and when nothing
// validates the full ranked list is kept as a best-effort result.
func (s *Sourcer) Source(ctx context.Context, photo []byte, query string) models.SourcingReport {
	ctx, span := tracer.Start(ctx, "sourcing.Source")
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return models.SourcingReport{Results: []models.ValidationResult{}}
	}

	start := time.Now()
	answer, err := s.answerer.Answer(ctx, sourcingPrompt(query, s.config.MaxCandidates))
	capabilityDuration.WithLabelValues("answer").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("search capability failed", "query", query, "error", err)
		return models.SourcingReport{
			Results:  []models.ValidationResult{},
			Degraded: true,
			Error:    answerUnavailable,
		}
	}

	candidates, shape := ParseCandidates(answer, s.config.MaxCandidates)
	sourcingShapes.WithLabelValues(string(shape)).Inc()
	span.SetAttributes(
		attribute.String("answer.shape", string(shape)),
		attribute.Int("candidates.count", len(candidates)),
	)
	if len(candidates) == 0 {
		slog.Info("no candidates in search answer", "query", query, "shape", shape)
		return models.SourcingReport{Results: []models.ValidationResult{}, Degraded: true}
	}

	photoVec := s.embedPhoto(ctx, photo)

	results := make([]models.ValidationResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.ValidationConcurrency)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			results[i] = s.validator.Validate(gctx, cand, photoVec)
			return nil
		})
	}
	// Workers never return errors; validation failures are values.
	_ = g.Wait()

	// Valid candidates first, then by score. Stable so duplicate URLs from
	// the answer stay adjacent.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Valid != results[j].Valid {
			return results[i].Valid
		}
		return results[i].Score > results[j].Score
	})

	valid := results[:0:0]
	for _, r := range results {
		if r.Valid {
			valid = append(valid, r)
		}
	}
	if len(valid) > 0 {
		return models.SourcingReport{Results: valid}
	}
	return models.SourcingReport{Results: results, Degraded: true}
}

// embedPhoto computes the query photo's embedding once per sourcing request;
// every candidate comparison reuses it. Returns nil when no backend exists.
func (s *Sourcer) embedPhoto(ctx context.Context, photo []byte) []float64 {
	if len(photo) == 0 || s.embedder == nil || !s.embedder.Available() {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, photo)
	if err != nil {
		slog.Warn("query photo embedding failed, continuing without visual ranking", "error", err)
		return nil
	}
	return vec
}
