package exercise

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/models"
)

// Source describes one remote code-sample catalog. Entries point at raw
// source files; the fetcher turns them into exercises on demand.
type Source struct {
	Lang        string `json:"lang"`
	ProjectName string `json:"projectName"`

	// Path is the file path under the catalog base URL.
	Path string `json:"path"`
}

// httpClient is a thin wrapper over net/http for the sample catalog.
type httpClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}
}

func (c *httpClient) setHeader(key, value string) {
	c.headers[key] = value
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// Remote serves exercises fetched from a raw-file catalog, falling back to a
// local provider when the catalog is unreachable. Fetched exercises are
// cached for the life of the process; the corpus changes at deploy time, not
// at run time.
type Remote struct {
	client   *httpClient
	fallback *Static

	mu       sync.RWMutex
	sources  map[string][]Source
	fetched  map[string][]models.Exercise
}

// NewRemote creates a fetcher over the catalog base URL. Sources without a
// fallback entry simply fail when the catalog is down.
func NewRemote(baseURL string, fallback *Static, sources ...Source) *Remote {
	r := &Remote{
		client:   newHTTPClient(baseURL),
		fallback: fallback,
		sources:  make(map[string][]Source),
		fetched:  make(map[string][]models.Exercise),
	}
	for _, src := range sources {
		r.sources[src.Lang] = append(r.sources[src.Lang], src)
	}
	return r
}

// SetAuthToken attaches a bearer token to catalog requests.
func (r *Remote) SetAuthToken(token string) {
	r.client.setHeader("Authorization", "Bearer "+token)
}

// Exercise returns a sample for the language, fetching the catalog entries
// on first use.
func (r *Remote) Exercise(ctx context.Context, lang string) (*models.Exercise, error) {
	r.mu.RLock()
	pool, ok := r.fetched[lang]
	r.mu.RUnlock()
	if ok && len(pool) > 0 {
		return pickFrom(pool), nil
	}

	pool, err := r.fetchLang(ctx, lang)
	if err != nil {
		if r.fallback != nil {
			log.Warn().
				Err(err).
				Str("lang", lang).
				Msg("exercise catalog unavailable, using local samples")
			return r.fallback.Exercise(ctx, lang)
		}
		return nil, err
	}
	return pickFrom(pool), nil
}

func (r *Remote) fetchLang(ctx context.Context, lang string) ([]models.Exercise, error) {
	r.mu.RLock()
	srcs := r.sources[lang]
	r.mu.RUnlock()
	if len(srcs) == 0 {
		return nil, fmt.Errorf("no sources for language %q", lang)
	}

	var pool []models.Exercise
	for _, src := range srcs {
		body, err := r.client.get(ctx, src.Path)
		if err != nil {
			log.Warn().
				Err(err).
				Str("path", src.Path).
				Msg("failed to fetch code sample")
			continue
		}
		code := string(body)
		pool = append(pool, models.Exercise{
			ID:          src.Lang + ":" + src.Path,
			Lang:        src.Lang,
			ProjectName: src.ProjectName,
			Code:        code,
			Typeable:    MakeTypeable(code),
		})
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("all sources failed for language %q", lang)
	}

	r.mu.Lock()
	r.fetched[lang] = pool
	r.mu.Unlock()
	return pool, nil
}

func pickFrom(pool []models.Exercise) *models.Exercise {
	ex := pool[rand.Intn(len(pool))]
	return &ex
}

// MakeTypeable derives the text a player actually types from raw source:
// leading indentation is dropped, since editors insert it, and blank lines
// collapse to a single newline.
func MakeTypeable(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			blank = true
			continue
		}
		if blank && len(out) > 0 {
			// Collapsed blank run shows up as the newline that ends
			// the previous line; nothing extra to type.
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}
