package card

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrInvalidRequest is returned for a request without an image or a name.
	ErrInvalidRequest = errors.New("invalid card request")

	// ErrNotConfigured is returned when a collaborator is missing.
	ErrNotConfigured = errors.New("card workflow is not configured")
)

// Workflow runs the card pipeline: analyze, draw, render, store.
type Workflow struct {
	Analyzer Analyzer
	Artist   Artist
	Renderer Renderer
	Store    Store

	Logger *slog.Logger
}

func (w *Workflow) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

func (w *Workflow) check() error {
	switch {
	case w.Analyzer == nil:
		return fmt.Errorf("%w: analyzer is required", ErrNotConfigured)
	case w.Artist == nil:
		return fmt.Errorf("%w: artist is required", ErrNotConfigured)
	case w.Renderer == nil:
		return fmt.Errorf("%w: renderer is required", ErrNotConfigured)
	case w.Store == nil:
		return fmt.Errorf("%w: store is required", ErrNotConfigured)
	}
	return nil
}

// Run generates a card for req and returns its URL. Progress is written to events
// before each step; the last event is either a success carrying the URL or an
// error carrying the failure message. Event write errors are logged and ignored so
// a disconnected reader does not abort a card that is being paid for.
func (w *Workflow) Run(ctx context.Context, req Request, events EventWriter) (string, error) {
	if events == nil {
		events = Discard
	}
	logger := w.logger().With("name", req.Name)

	emit := func(e Event) {
		if err := events.WriteEvent(e); err != nil {
			logger.Debug("failed to write card event", "type", e.Type, "error", err)
		}
	}
	fail := func(step string, err error) (string, error) {
		logger.Error("card generation failed", "step", step, "error", err)
		emit(Event{Type: EventError, Message: err.Error()})
		return "", err
	}

	if err := w.check(); err != nil {
		return fail("config", err)
	}
	if len(req.Image) == 0 {
		return fail("validate", fmt.Errorf("%w: image is required", ErrInvalidRequest))
	}
	if req.Name == "" {
		return fail("validate", fmt.Errorf("%w: name is required", ErrInvalidRequest))
	}

	emit(Event{Type: EventProgress, Message: "Analyzing image..."})
	analysis, err := w.Analyzer.Analyze(ctx, req.Image)
	if err != nil {
		return fail("analyze", fmt.Errorf("failed to analyze image: %w", err))
	}
	if !analysis.Type.Valid() {
		return fail("analyze", fmt.Errorf("failed to analyze image: %w: %q", ErrUnknownType, analysis.Type))
	}
	logger.Info("image analyzed", "type", analysis.Type, "ability", analysis.SpecialAbility)

	emit(Event{Type: EventProgress, Message: "Generating artwork..."})
	artwork, err := w.Artist.Draw(ctx, req.Image, analysis.Type)
	if err != nil {
		return fail("draw", fmt.Errorf("failed to generate artwork: %w", err))
	}

	emit(Event{Type: EventProgress, Message: "Creating card..."})
	png, err := w.Renderer.Render(ctx, Details{
		Artwork:                   artwork,
		Name:                      req.Name,
		Birthday:                  req.Birthday,
		Type:                      analysis.Type,
		SpecialAbility:            analysis.SpecialAbility,
		SpecialAbilityDescription: analysis.SpecialAbilityDescription,
	})
	if err != nil {
		return fail("render", fmt.Errorf("failed to render card: %w", err))
	}

	url, err := w.Store.Put(ctx, "card.png", png, "image/png")
	if err != nil {
		return fail("store", fmt.Errorf("failed to store card: %w", err))
	}

	logger.Info("card generated", "url", url)
	emit(Event{Type: EventSuccess, URL: url})
	return url, nil
}
