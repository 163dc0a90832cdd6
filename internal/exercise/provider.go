package exercise

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/voithos/swiftcode/internal/models"
)

// Static serves exercises from a fixed in-memory catalog, one picked at
// random per request. How samples are produced and curated is somebody
// else's problem; this only hands out what it was given.
type Static struct {
	mu     sync.RWMutex
	byLang map[string][]models.Exercise
}

// NewStatic creates a provider over the given exercises.
func NewStatic(exercises ...models.Exercise) *Static {
	s := &Static{byLang: make(map[string][]models.Exercise)}
	for _, ex := range exercises {
		s.byLang[ex.Lang] = append(s.byLang[ex.Lang], ex)
	}
	return s
}

// Add registers another exercise.
func (s *Static) Add(ex models.Exercise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byLang[ex.Lang] = append(s.byLang[ex.Lang], ex)
}

// Exercise returns a random exercise for the language.
func (s *Static) Exercise(ctx context.Context, lang string) (*models.Exercise, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool := s.byLang[lang]
	if len(pool) == 0 {
		return nil, fmt.Errorf("no exercises for language %q", lang)
	}
	ex := pool[rand.Intn(len(pool))]
	return &ex, nil
}

// Langs returns the languages with at least one exercise.
func (s *Static) Langs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	langs := make([]string, 0, len(s.byLang))
	for lang := range s.byLang {
		langs = append(langs, lang)
	}
	return langs
}
