package identify

import (
	"encoding/json"
	"regexp"

	"github.com/partfinder/identify/llm"
	"github.com/partfinder/identify/models"
)

// ResponseShape tags the recognized forms a search answer can take. The
// capability sometimes returns a bare JSON array, sometimes an object
// wrapping one, sometimes plain prose with markdown links, and sometimes
// nothing usable; each shape has exactly one normalization path.
type ResponseShape string

const (
	ShapeArray       ResponseShape = "array"
	ShapeWrapped     ResponseShape = "wrapped_array"
	ShapeMarkdown    ResponseShape = "markdown_text"
	ShapeUnparseable ResponseShape = "unparseable"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
)

// flexString accepts both JSON strings and bare numbers; answers write
// prices either way ("19,90 €" or 19.9).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

// candidateJSON tolerates the French and English field names seen in answers.
type candidateJSON struct {
	Name     string     `json:"name"`
	Nom      string     `json:"nom"`
	Title    string     `json:"titre"`
	Price    flexString `json:"price"`
	Prix     flexString `json:"prix"`
	URL      string     `json:"url"`
	Lien     string     `json:"lien"`
	Link     string     `json:"link"`
	Image    string     `json:"image"`
	ImageURL string     `json:"image_url"`
}

// wrappedAnswer matches the object shapes that wrap a candidate array.
type wrappedAnswer struct {
	Produits   []json.RawMessage `json:"produits"`
	Candidates []json.RawMessage `json:"candidates"`
	Results    []json.RawMessage `json:"results"`
	Items      []json.RawMessage `json:"items"`
}

// ParseCandidates normalizes a search answer into a candidate list,
// discarding malformed entries and truncating to max. The returned shape
// says which normalization path fired.
func ParseCandidates(answer string, max int) ([]models.ProductCandidate, ResponseShape) {
	cleaned := llm.CleanJSON([]byte(answer))

	var rawItems []json.RawMessage
	if err := json.Unmarshal(cleaned, &rawItems); err == nil {
		return decodeCandidates(rawItems, max), ShapeArray
	}

	var wrapped wrappedAnswer
	if err := json.Unmarshal(cleaned, &wrapped); err == nil {
		for _, items := range [][]json.RawMessage{wrapped.Produits, wrapped.Candidates, wrapped.Results, wrapped.Items} {
			if len(items) > 0 {
				return decodeCandidates(items, max), ShapeWrapped
			}
		}
	}

	if links := ExtractMarkdownLinks(answer); len(links) > 0 {
		candidates := make([]models.ProductCandidate, 0, len(links))
		for _, l := range links {
			if len(candidates) >= max {
				break
			}
			candidates = append(candidates, models.ProductCandidate{
				Name:         l.Title,
				URL:          l.URL,
				SourceDomain: DomainOf(l.URL),
			})
		}
		return candidates, ShapeMarkdown
	}

	return nil, ShapeUnparseable
}

func decodeCandidates(rawItems []json.RawMessage, max int) []models.ProductCandidate {
	candidates := make([]models.ProductCandidate, 0, len(rawItems))
	for _, raw := range rawItems {
		if len(candidates) >= max {
			break
		}
		var item candidateJSON
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		url := firstOf(item.URL, item.Lien, item.Link)
		if url == "" {
			continue
		}
		candidates = append(candidates, models.ProductCandidate{
			Name:         firstOf(item.Name, item.Nom, item.Title),
			Price:        firstOf(string(item.Price), string(item.Prix)),
			URL:          url,
			ImageURL:     firstOf(item.ImageURL, item.Image),
			SourceDomain: DomainOf(url),
			Raw:          raw,
		})
	}
	return candidates
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
