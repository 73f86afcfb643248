package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/partfinder/identify/models"
	"github.com/partfinder/identify/store"
)

type fakePipeline struct {
	report  *models.Report
	failure *models.FailureReport
	photo   []byte
	context string
	calls   int
}

func (p *fakePipeline) Identify(_ context.Context, photo []byte, userContext string) (*models.Report, *models.FailureReport) {
	p.calls++
	p.photo = photo
	p.context = userContext
	return p.report, p.failure
}

func newTestServer(pipeline *fakePipeline) *Server {
	return NewServer(DefaultConfig(), pipeline, store.New(store.DefaultConfig()))
}

func multipartPhoto(t *testing.T, photo []byte, contextText string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", "piece.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(photo)
	w.WriteField("context", contextText)
	w.Close()
	return &buf, w.FormDataContentType()
}

func successReport() *models.Report {
	return &models.Report{
		ID: "r-1",
		Classification: models.ClassificationResult{
			Material:          "laiton",
			TechnicalStandard: "Filetage 15/21",
			SearchQuery:       "robinet laiton 15/21",
		},
		Quality: models.QualityReport{Acceptable: true},
		Sourcing: models.SourcingReport{
			Results: []models.ValidationResult{{
				Candidate: models.ProductCandidate{
					Name:         "Robinet laiton 15/21",
					Price:        "19,90 €",
					URL:          "https://www.leroymerlin.fr/p/robinet-123.html",
					SourceDomain: "leroymerlin.fr",
				},
				Valid:  true,
				Score:  155,
				Reason: models.ReasonOK,
			}},
		},
	}
}

func TestIdentifyEndpointRendersReport(t *testing.T) {
	pipeline := &fakePipeline{report: successReport()}
	s := newTestServer(pipeline)

	body, contentType := multipartPhoto(t, []byte("jpeg-bytes"), "sous l'évier")
	req := httptest.NewRequest(http.MethodPost, "/identify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	html := rec.Body.String()
	for _, want := range []string{"laiton", "Filetage 15/21", "Où acheter", "Robinet laiton 15/21", "19,90 €", "leroymerlin.fr"} {
		if !strings.Contains(html, want) {
			t.Errorf("fragment missing %q:\n%s", want, html)
		}
	}
	if pipeline.calls != 1 {
		t.Errorf("pipeline calls = %d, want 1", pipeline.calls)
	}
	if string(pipeline.photo) != "jpeg-bytes" {
		t.Errorf("photo = %q", pipeline.photo)
	}
	if pipeline.context != "sous l'évier" {
		t.Errorf("context = %q", pipeline.context)
	}
}

func TestIdentifyEndpointRendersFailureAs200(t *testing.T) {
	pipeline := &fakePipeline{failure: &models.FailureReport{
		Code:    models.FailureBadPhoto,
		Message: "Photo inutilisable (photo floue). Reprenez la photo et réessayez.",
	}}
	s := newTestServer(pipeline)

	body, contentType := multipartPhoto(t, []byte("img"), "")
	req := httptest.NewRequest(http.MethodPost, "/identify", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (failures are content)", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "photo floue") {
		t.Errorf("fragment missing failure message:\n%s", rec.Body.String())
	}
}

func TestIdentifyEndpointJSON(t *testing.T) {
	pipeline := &fakePipeline{report: successReport()}
	s := newTestServer(pipeline)

	body, contentType := multipartPhoto(t, []byte("img"), "")
	req := httptest.NewRequest(http.MethodPost, "/identify", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "r-1" || got.Classification.Material != "laiton" {
		t.Errorf("got %+v", got)
	}
}

func TestIdentifyEndpointRejectsMissingImage(t *testing.T) {
	s := newTestServer(&fakePipeline{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("context", "pas de photo")
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/identify", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestIdentifyEndpointMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/identify", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHomePage(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	page := rec.Body.String()
	if !strings.Contains(page, "PartFinder") || !strings.Contains(page, "/identify") {
		t.Error("home page missing expected content")
	}
}

func TestHomePageUnknownPath(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	cache := store.New(store.DefaultConfig())
	cache.Save("https://shop.fr/p/1", models.ValidationResult{Score: 105})
	s := NewServer(DefaultConfig(), &fakePipeline{}, cache)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var health struct {
		Status            string `json:"status"`
		CachedValidations int    `json:"cached_validations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "healthy" || health.CachedValidations != 1 {
		t.Errorf("health = %+v", health)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodOptions, "/identify", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(&fakePipeline{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
