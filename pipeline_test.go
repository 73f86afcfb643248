package identify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/partfinder/identify/models"
)

type fakeGate struct {
	report models.QualityReport
	err    error
	calls  int
}

func (g *fakeGate) Inspect(_ []byte) (models.QualityReport, error) {
	g.calls++
	return g.report, g.err
}

type fakeClassifier struct {
	result models.ClassificationResult
	err    error
	panics bool
	calls  int
}

func (c *fakeClassifier) Classify(_ context.Context, _ []byte, _ string) (models.ClassificationResult, error) {
	c.calls++
	if c.panics {
		panic("classifier bug")
	}
	return c.result, c.err
}

type fakeSourcer struct {
	report models.SourcingReport
	calls  int
	query  string
}

func (s *fakeSourcer) Source(_ context.Context, _ []byte, query string) models.SourcingReport {
	s.calls++
	s.query = query
	return s.report
}

func goodQuality() models.QualityReport {
	return models.QualityReport{Acceptable: true, Sharpness: 200, Brightness: 120, Width: 640, Height: 480}
}

func confidence(v float64) *float64 { return &v }

func TestIdentifyRejectsUndecodablePhoto(t *testing.T) {
	gate := &fakeGate{err: errors.New("image: unknown format")}
	classifier := &fakeClassifier{}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	report, failure := p.Identify(context.Background(), []byte("not an image"), "")

	if report != nil || failure == nil {
		t.Fatal("expected a failure report")
	}
	if failure.Code != models.FailureBadPhoto {
		t.Errorf("code = %q, want %q", failure.Code, models.FailureBadPhoto)
	}
	if classifier.calls != 0 {
		t.Errorf("classifier called %d times on bad photo, want 0", classifier.calls)
	}
	if sourcer.calls != 0 {
		t.Errorf("sourcer called %d times on bad photo, want 0", sourcer.calls)
	}
}

func TestIdentifyFailsClosedOnQuality(t *testing.T) {
	gate := &fakeGate{report: models.QualityReport{
		Acceptable: false,
		Issues:     []models.QualityIssue{models.IssueBlurry, models.IssueTooDark},
		Sharpness:  4.2,
		Brightness: 11,
	}}
	classifier := &fakeClassifier{}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	report, failure := p.Identify(context.Background(), []byte("img"), "")

	if report != nil || failure == nil {
		t.Fatal("expected a failure report")
	}
	if failure.Code != models.FailureBadPhoto {
		t.Errorf("code = %q, want %q", failure.Code, models.FailureBadPhoto)
	}
	if !strings.Contains(failure.Message, "floue") || !strings.Contains(failure.Message, "sombre") {
		t.Errorf("message does not name the issues: %q", failure.Message)
	}
	if len(failure.Issues) != 2 {
		t.Errorf("issues = %v", failure.Issues)
	}
	if failure.Quality == nil || failure.Quality.Sharpness != 4.2 {
		t.Error("quality measurements must accompany the refusal")
	}
	if classifier.calls != 0 || sourcer.calls != 0 {
		t.Error("downstream capabilities must not run on a rejected photo")
	}
}

func TestIdentifyClassificationFailure(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{err: errors.New("capability status 500")}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	_, failure := p.Identify(context.Background(), []byte("img"), "")

	if failure == nil || failure.Code != models.FailureClassification {
		t.Fatalf("failure = %+v, want classification failure", failure)
	}
	if sourcer.calls != 0 {
		t.Errorf("sourcer called %d times after failed classification, want 0", sourcer.calls)
	}
}

func TestIdentifyLowConfidenceSkipsSourcing(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{result: models.ClassificationResult{
		Material:   "laiton",
		Confidence: confidence(0.2),
	}}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	_, failure := p.Identify(context.Background(), []byte("img"), "")

	if failure == nil || failure.Code != models.FailureLowConfidence {
		t.Fatalf("failure = %+v, want low-confidence failure", failure)
	}
	if sourcer.calls != 0 {
		t.Errorf("sourcer called %d times on low confidence, want 0", sourcer.calls)
	}
}

func TestIdentifyMissingConfidenceProceeds(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{result: models.ClassificationResult{
		SearchQuery: "robinet laiton 15/21",
	}}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	report, failure := p.Identify(context.Background(), []byte("img"), "")

	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if report == nil || sourcer.calls != 1 {
		t.Error("classification without a confidence figure must still source")
	}
}

func TestIdentifyQueryFallback(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{result: models.ClassificationResult{
		Material:          "laiton",
		TechnicalStandard: "Filetage 15/21",
		Confidence:        confidence(0.8),
	}}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	_, failure := p.Identify(context.Background(), []byte("img"), "")

	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if sourcer.query != "laiton Filetage 15/21" {
		t.Errorf("fallback query = %q", sourcer.query)
	}
}

func TestIdentifyNoDerivableQuery(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{result: models.ClassificationResult{Confidence: confidence(0.9)}}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	_, failure := p.Identify(context.Background(), []byte("img"), "")

	if failure == nil || failure.Code != models.FailureNoQuery {
		t.Fatalf("failure = %+v, want no-query failure", failure)
	}
	if sourcer.calls != 0 {
		t.Error("sourcer must not run without a query")
	}
}

func TestIdentifySuccess(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{result: models.ClassificationResult{
		Material:          "laiton",
		TechnicalStandard: "Filetage 15/21",
		SearchQuery:       "robinet laiton 15/21",
		Confidence:        confidence(0.85),
	}}
	sourcer := &fakeSourcer{report: models.SourcingReport{
		Results: []models.ValidationResult{{Valid: true, Score: 155, Reason: models.ReasonOK}},
	}}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	report, failure := p.Identify(context.Background(), []byte("img"), "sous l'évier")

	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if report.ID == "" {
		t.Error("report must carry an ID")
	}
	if report.Classification.Material != "laiton" {
		t.Errorf("classification = %+v", report.Classification)
	}
	if len(report.Sourcing.Results) != 1 {
		t.Errorf("sourcing results = %+v", report.Sourcing.Results)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", report.Warnings)
	}
	if report.CreatedAt.IsZero() {
		t.Error("report must be timestamped")
	}
}

func TestIdentifyDegradedSourcingWarns(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{result: models.ClassificationResult{SearchQuery: "robinet"}}
	sourcer := &fakeSourcer{report: models.SourcingReport{Degraded: true}}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	report, failure := p.Identify(context.Background(), []byte("img"), "")

	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if len(report.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one", report.Warnings)
	}
}

func TestIdentifyRecoversFromPanic(t *testing.T) {
	gate := &fakeGate{report: goodQuality()}
	classifier := &fakeClassifier{panics: true}
	sourcer := &fakeSourcer{}
	p := NewPipeline(DefaultConfig(), gate, classifier, sourcer)

	report, failure := p.Identify(context.Background(), []byte("img"), "")

	if report != nil {
		t.Error("panicking pipeline must not return a report")
	}
	if failure == nil || failure.Code != models.FailureInternal {
		t.Fatalf("failure = %+v, want internal failure", failure)
	}
}
