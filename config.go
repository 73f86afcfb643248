package identify

import "time"

// Config holds the pipeline policy knobs. The thresholds are deliberate
// tuning points, not incidental constants, so they all live here.
type Config struct {
	// Quality gate.
	BlurThreshold       float64 // Laplacian-variance below this flags "blurry"
	MinPixels           int     // total pixel count below this flags "too_small"
	BrightnessThreshold float64 // mean luma below this flags "too_dark"

	// Classification.
	MinConfidence float64 // classification confidence below this aborts sourcing

	// Validation scoring.
	TrustedDomainScore int // base score for allowlisted marketplaces
	UnknownDomainScore int // base score for any other domain
	ProductPageScore   int // bonus when the page looks like a product page
	PriceScore         int // bonus for a currency-amount pattern
	SKUScore           int // bonus for a reference/SKU token
	ValidScore         int // minimum total score for acceptance
	VisualScoreFloor   int // minimum visual contribution for acceptance

	// AllowTextOnlyMatches waives the visual-score floor, but only for
	// candidates where no product image could be extracted at all. A page
	// whose image exists but scores poorly still fails the floor.
	AllowTextOnlyMatches bool

	// Sourcing.
	MaxCandidates         int           // candidates kept from a search answer
	ValidationConcurrency int           // simultaneous candidate validations
	AnswerTimeout         time.Duration // search/answer capability timeout
	AnswerRetries         int           // bounded retry count on transport failure

	// Fetching.
	FetchTimeout  time.Duration // per-page and per-image timeout
	MaxBodyBytes  int64         // page body truncation cap
	MaxImageBytes int64         // product image download cap

	// Cache.
	CacheTTL time.Duration // validation result time-to-live
}

// DefaultConfig returns the documented policy defaults.
func DefaultConfig() Config {
	return Config{
		BlurThreshold:       30,
		MinPixels:           224 * 224,
		BrightnessThreshold: 20,

		MinConfidence: 0.4,

		TrustedDomainScore: 35,
		UnknownDomainScore: 10,
		ProductPageScore:   50,
		PriceScore:         10,
		SKUScore:           10,
		ValidScore:         70,
		VisualScoreFloor:   10,

		AllowTextOnlyMatches: false,

		MaxCandidates:         8,
		ValidationConcurrency: 8,
		AnswerTimeout:         28 * time.Second,
		AnswerRetries:         2,

		FetchTimeout:  6 * time.Second,
		MaxBodyBytes:  200_000,
		MaxImageBytes: 10 * 1024 * 1024,

		CacheTTL: 24 * time.Hour,
	}
}
