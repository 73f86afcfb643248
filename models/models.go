package models

import (
	"encoding/json"
	"time"
)

// QualityIssue names a specific reason a photo was rejected by the quality gate.
type QualityIssue string

const (
	IssueBlurry   QualityIssue = "blurry"
	IssueTooSmall QualityIssue = "too_small"
	IssueTooDark  QualityIssue = "too_dark"
)

// QualityReport is the result of the pre-flight photo quality gate.
// It is derived once per uploaded photo and never mutated afterwards.
type QualityReport struct {
	Acceptable bool           `json:"acceptable"`
	Issues     []QualityIssue `json:"issues,omitempty"`
	Sharpness  float64        `json:"sharpness_score"`
	Brightness float64        `json:"brightness"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	// Orientation is the EXIF orientation value (1-8) when the photo carries
	// EXIF data, 0 otherwise. Informational only.
	Orientation int `json:"orientation,omitempty"`
}

// ClassificationResult is the structured guess produced by the vision
// classification capability. Consumed read-only by the sourcing orchestrator.
type ClassificationResult struct {
	Material          string   `json:"material"`
	TechnicalStandard string   `json:"technical_standard"`
	SearchQuery       string   `json:"search_query"`
	Confidence        *float64 `json:"confidence,omitempty"`
}

// ProductCandidate is a single proposed product match parsed from the search
// capability's answer, before validation.
type ProductCandidate struct {
	Name         string          `json:"name"`
	Price        string          `json:"price,omitempty"`
	URL          string          `json:"url"`
	ImageURL     string          `json:"image_url,omitempty"`
	SourceDomain string          `json:"source_domain"`
	Raw          json.RawMessage `json:"-"`
}

// ValidationReason explains a validation verdict.
type ValidationReason string

const (
	ReasonOK            ValidationReason = "ok"
	ReasonLowScore      ValidationReason = "low_score"
	ReasonLowSimilarity ValidationReason = "low_similarity"
	ReasonFetchError    ValidationReason = "fetch_error"
	ReasonInvalidURL    ValidationReason = "invalid_format_or_blacklisted"
)

// ValidationResult is the per-candidate scoring outcome.
type ValidationResult struct {
	Candidate        ProductCandidate `json:"candidate"`
	Valid            bool             `json:"valid"`
	Score            int              `json:"score"`
	Reason           ValidationReason `json:"reason"`
	VisualSimilarity *float64         `json:"visual_similarity,omitempty"`
	ProductImageURL  string           `json:"product_image_url,omitempty"`
}

// SourcingReport holds ranked validation results, best first.
// Invariant: when at least one result is valid, only valid results are
// retained; otherwise the full ranked list is kept (Degraded=true) so the
// caller can still present best-effort matches.
type SourcingReport struct {
	Results  []ValidationResult `json:"results"`
	Degraded bool               `json:"degraded,omitempty"`
	// Error carries a user-renderable message when the search capability
	// itself failed (after retries). Results is empty in that case.
	Error string `json:"error,omitempty"`
}

// Report is the successful outcome of an identification request.
type Report struct {
	ID             string               `json:"id"`
	Classification ClassificationResult `json:"classification"`
	Quality        QualityReport        `json:"quality"`
	Sourcing       SourcingReport       `json:"sourcing"`
	Warnings       []string             `json:"warnings,omitempty"`
	ProcessingTime float64              `json:"processing_time_seconds"`
	CreatedAt      time.Time            `json:"created_at"`
}

// FailureCode classifies in-band pipeline failures.
type FailureCode string

const (
	FailureBadPhoto       FailureCode = "bad_photo"
	FailureLowConfidence  FailureCode = "low_confidence"
	FailureClassification FailureCode = "classification_error"
	FailureNoQuery        FailureCode = "no_search_query"
	FailureInternal       FailureCode = "internal"
)

// FailureReport is returned instead of a Report when the pipeline cannot
// proceed. It is rendered as content, never as an HTTP error.
type FailureReport struct {
	Code    FailureCode    `json:"code"`
	Message string         `json:"message"`
	Issues  []QualityIssue `json:"issues,omitempty"`
	Quality *QualityReport `json:"quality,omitempty"`
}
