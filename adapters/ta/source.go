package ta

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HTTPPriceSource pulls recent closes from a price API that returns a JSON
// array of numbers, most recent last.
type HTTPPriceSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPPriceSource creates a price source over an HTTP close-series API.
func NewHTTPPriceSource(baseURL string, timeout time.Duration) *HTTPPriceSource {
	return &HTTPPriceSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Series implements ports.PriceSource.
func (s *HTTPPriceSource) Series(ctx context.Context, symbol string, points int) ([]float64, error) {
	url := s.baseURL + "?symbol=" + symbol + "&limit=" + strconv.Itoa(points)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prices for %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price API returned %d for %s", resp.StatusCode, symbol)
	}

	var series []float64
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, fmt.Errorf("decode price series: %w", err)
	}
	return series, nil
}

// SyntheticPriceSource generates a deterministic random walk per symbol.
// Used in development mode when no price API is configured, so the TA leg
// of the pipeline stays exercised end to end.
type SyntheticPriceSource struct {
	mu     sync.Mutex
	series map[string][]float64
}

// NewSyntheticPriceSource creates the synthetic source.
func NewSyntheticPriceSource() *SyntheticPriceSource {
	return &SyntheticPriceSource{series: make(map[string][]float64)}
}

// Series implements ports.PriceSource.
func (s *SyntheticPriceSource) Series(_ context.Context, symbol string, points int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, ok := s.series[symbol]
	if !ok || len(cached) < points {
		h := fnv.New64a()
		h.Write([]byte(symbol))
		rng := rand.New(rand.NewSource(int64(h.Sum64())))

		price := 100.0
		cached = make([]float64, 0, points)
		for i := 0; i < points; i++ {
			price *= 1 + (rng.Float64()-0.5)*0.02
			cached = append(cached, price)
		}
		s.series[symbol] = cached
	}
	return cached[len(cached)-points:], nil
}
