package identify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/partfinder/identify/models"
)

// Classifier abstracts the external vision classification capability.
type Classifier interface {
	Classify(ctx context.Context, imageData []byte, contextText string) (models.ClassificationResult, error)
}

// QualityGate abstracts the pre-flight photo check.
type QualityGate interface {
	Inspect(data []byte) (models.QualityReport, error)
}

// ProductSourcer abstracts the sourcing orchestrator.
type ProductSourcer interface {
	Source(ctx context.Context, photo []byte, query string) models.SourcingReport
}

// Pipeline is the top-level entry point: quality gate, classification,
// sourcing, report assembly. It always produces either a Report or a
// FailureReport — never a panic and never a bare error.
type Pipeline struct {
	config     Config
	gate       QualityGate
	classifier Classifier
	sourcer    ProductSourcer
}

// NewPipeline wires the pipeline from explicitly constructed dependencies.
func NewPipeline(config Config, gate QualityGate, classifier Classifier, sourcer ProductSourcer) *Pipeline {
	return &Pipeline{config: config, gate: gate, classifier: classifier, sourcer: sourcer}
}

// Identify runs the full identification flow for one uploaded photo.
// Exactly one of the two return values is non-nil.
func (p *Pipeline) Identify(ctx context.Context, photo []byte, userContext string) (report *models.Report, failure *models.FailureReport) {
	ctx, span := tracer.Start(ctx, "pipeline.Identify")
	defer span.End()

	start := time.Now()

	// Programming errors must not escape to the HTTP layer as a crash.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic recovered", "panic", r)
			identifyRequests.WithLabelValues(string(models.FailureInternal)).Inc()
			report = nil
			failure = &models.FailureReport{
				Code:    models.FailureInternal,
				Message: "Erreur interne inattendue. Réessayez dans un instant.",
			}
		}
	}()

	quality, err := p.gate.Inspect(photo)
	if err != nil {
		identifyRequests.WithLabelValues(string(models.FailureBadPhoto)).Inc()
		return nil, &models.FailureReport{
			Code:    models.FailureBadPhoto,
			Message: "Format d'image non reconnu. Envoyez une photo JPEG ou PNG.",
		}
	}
	if !quality.Acceptable {
		identifyRequests.WithLabelValues(string(models.FailureBadPhoto)).Inc()
		return nil, &models.FailureReport{
			Code:    models.FailureBadPhoto,
			Message: qualityMessage(quality.Issues),
			Issues:  quality.Issues,
			Quality: &quality,
		}
	}

	classifyStart := time.Now()
	classification, err := p.classifier.Classify(ctx, photo, userContext)
	capabilityDuration.WithLabelValues("classify").Observe(time.Since(classifyStart).Seconds())
	if err != nil {
		slog.Warn("classification failed", "error", err)
		identifyRequests.WithLabelValues(string(models.FailureClassification)).Inc()
		return nil, &models.FailureReport{
			Code:    models.FailureClassification,
			Message: "Analyse de la photo impossible pour le moment. Réessayez.",
		}
	}

	if classification.Confidence != nil && *classification.Confidence < p.config.MinConfidence {
		identifyRequests.WithLabelValues(string(models.FailureLowConfidence)).Inc()
		return nil, &models.FailureReport{
			Code:    models.FailureLowConfidence,
			Message: "Identification trop incertaine. Reprenez la photo de plus près, avec un meilleur éclairage.",
		}
	}

	query := strings.TrimSpace(classification.SearchQuery)
	if query == "" {
		query = strings.TrimSpace(classification.Material + " " + classification.TechnicalStandard)
	}
	if query == "" {
		identifyRequests.WithLabelValues(string(models.FailureNoQuery)).Inc()
		return nil, &models.FailureReport{
			Code:    models.FailureNoQuery,
			Message: "Impossible de déterminer une requête de recherche pour cette pièce.",
		}
	}

	sourcing := p.sourcer.Source(ctx, photo, query)

	var warnings []string
	if sourcing.Error != "" {
		warnings = append(warnings, sourcing.Error)
	} else if sourcing.Degraded {
		warnings = append(warnings, "Aucun lien n'a pu être vérifié ; résultats affichés à titre indicatif.")
	}

	identifyRequests.WithLabelValues("ok").Inc()
	return &models.Report{
		ID:             uuid.New().String(),
		Classification: classification,
		Quality:        quality,
		Sourcing:       sourcing,
		Warnings:       warnings,
		ProcessingTime: time.Since(start).Seconds(),
		CreatedAt:      time.Now(),
	}, nil
}

// qualityMessage names every violated criterion in user-facing French.
func qualityMessage(issues []models.QualityIssue) string {
	named := make([]string, 0, len(issues))
	for _, issue := range issues {
		switch issue {
		case models.IssueBlurry:
			named = append(named, "photo floue")
		case models.IssueTooSmall:
			named = append(named, "résolution trop faible")
		case models.IssueTooDark:
			named = append(named, "photo trop sombre")
		}
	}
	return fmt.Sprintf("Photo inutilisable (%s). Reprenez la photo et réessayez.", strings.Join(named, ", "))
}
