// Package cardtest provides in-memory card collaborators for tests.
package cardtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/x402cards/paygate/card"
)

// Analyzer returns a fixed analysis, or Err.
type Analyzer struct {
	Result card.Analysis
	Err    error
}

func (a *Analyzer) Analyze(ctx context.Context, image []byte) (card.Analysis, error) {
	if a.Err != nil {
		return card.Analysis{}, a.Err
	}
	return a.Result, nil
}

// Artist echoes the photo back as artwork, or returns Err.
type Artist struct {
	Err error
}

func (a *Artist) Draw(ctx context.Context, image []byte, t card.Type) ([]byte, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return image, nil
}

// Renderer records the details it was asked to render.
type Renderer struct {
	Err error

	mu      sync.Mutex
	details []card.Details
}

func (r *Renderer) Render(ctx context.Context, d card.Details) ([]byte, error) {
	r.mu.Lock()
	r.details = append(r.details, d)
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return []byte("png:" + d.Name), nil
}

// Rendered returns every Details passed to Render.
func (r *Renderer) Rendered() []card.Details {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]card.Details(nil), r.details...)
}

// Store keeps objects in memory and hands out example.com URLs.
type Store struct {
	Err error

	mu      sync.Mutex
	objects map[string][]byte
}

func (s *Store) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	url := fmt.Sprintf("https://blob.example.com/%d-%s", len(s.objects), name)
	s.objects[url] = data
	return url, nil
}

// Object returns the data stored at url.
func (s *Store) Object(url string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	return data, ok
}

// Workflow returns a workflow wired to fresh fakes that succeed with analysis.
func Workflow(analysis card.Analysis) (*card.Workflow, *Renderer, *Store) {
	r := &Renderer{}
	s := &Store{}
	return &card.Workflow{
		Analyzer: &Analyzer{Result: analysis},
		Artist:   &Artist{},
		Renderer: r,
		Store:    s,
	}, r, s
}
