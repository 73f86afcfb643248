package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/corona10/goimagehash"
)

// Embedder produces fixed-dimensionality vectors for images. An unavailable
// backend reports Available() == false and callers branch once on that —
// absence of the capability never blocks the pipeline.
type Embedder interface {
	// Embed returns the embedding for the encoded image bytes.
	Embed(ctx context.Context, imageData []byte) ([]float64, error)
	// Available reports whether the backend can be used at all.
	Available() bool
}

// Cosine returns the cosine similarity of a and b in [-1,1].
// Nil or mismatched inputs yield 0 with ok=false (no score contribution).
func Cosine(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// HashEmbedder derives a 64-dimensional ±1 vector from a perceptual hash.
// It is the degraded local fallback when no remote embedding backend is
// configured: much coarser than a learned embedding, but it still separates
// "same product photo" from "unrelated image".
type HashEmbedder struct{}

// Available always reports true; hashing needs no backend.
func (HashEmbedder) Available() bool { return true }

// Embed decodes the image and expands its perception hash into a ±1 vector.
func (HashEmbedder) Embed(_ context.Context, imageData []byte) ([]float64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("perception hash: %w", err)
	}
	bits := hash.GetHash()
	vec := make([]float64, 64)
	for i := 0; i < 64; i++ {
		if bits&(1<<uint(i)) != 0 {
			vec[i] = 1
		} else {
			vec[i] = -1
		}
	}
	return vec, nil
}

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint with the
// image as a base64 payload.
type RemoteEmbedder struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Available reports whether a backend URL is configured.
func (e *RemoteEmbedder) Available() bool {
	return e != nil && e.BaseURL != ""
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed posts the image to the embeddings endpoint and returns the vector.
func (e *RemoteEmbedder) Embed(ctx context.Context, imageData []byte) ([]float64, error) {
	if !e.Available() {
		return nil, fmt.Errorf("embedding backend not configured")
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(embeddingRequest{
		Model: e.Model,
		Input: []string{base64.StdEncoding.EncodeToString(imageData)},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding backend status %d: %s", resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding backend returned no vector")
	}
	return parsed.Data[0].Embedding, nil
}
