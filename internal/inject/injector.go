// Package inject fills a chat application's input surface and triggers its
// submission by evaluating generated scripts inside the target session.
package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Executor evaluates a script expression in a session and returns its value.
// session.Handle satisfies it.
type Executor interface {
	ExecuteScript(ctx context.Context, code string) (any, error)
}

// ErrScript wraps every failure raised while evaluating a generated script.
var ErrScript = errors.New("script execution failed")

// SubmitPath reports which submission path was taken.
type SubmitPath string

const (
	SubmitClicked  SubmitPath = "clicked"
	SubmitEnterKey SubmitPath = "enter"
	SubmitNone     SubmitPath = "none"
)

// Injection is the result of one fill attempt. Found means the input surface
// was located, not that the page accepted the text.
type Injection struct {
	Found   bool
	Surface SurfaceKind
	Shape   ElementShape
}

// Config controls script generation.
type Config struct {
	// StructuredMarker is the selector that identifies the rich-text editor
	// subsystem. Defaults to DefaultStructuredMarker.
	StructuredMarker string

	// Debug adds page-side diagnostics to the probe script.
	Debug bool

	Logger *slog.Logger
}

// Injector generates and runs the probe, fill and submit scripts.
type Injector struct {
	marker string
	debug  bool
	logger *slog.Logger
}

// New creates an Injector.
func New(cfg Config) *Injector {
	if cfg.StructuredMarker == "" {
		cfg.StructuredMarker = DefaultStructuredMarker
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Injector{
		marker: cfg.StructuredMarker,
		debug:  cfg.Debug,
		logger: cfg.Logger,
	}
}

// Inject locates the input surface with locator, classifies it and fills it
// with text. When nothing matches it returns Found=false and a nil error;
// there is no fallback probing. text must be non-blank; callers check.
func (i *Injector) Inject(ctx context.Context, exec Executor, locator, text string) (Injection, error) {
	probe, err := ProbeScript(locator, i.marker, i.debug)
	if err != nil {
		return Injection{}, err
	}

	res, err := exec.ExecuteScript(ctx, probe)
	if err != nil {
		return Injection{}, fmt.Errorf("%w: probe: %w", ErrScript, err)
	}

	shape, err := decodeShape(res)
	if err != nil {
		return Injection{}, fmt.Errorf("%w: %w", ErrScript, err)
	}

	kind := Classify(shape)
	if kind == SurfaceNone {
		i.logger.Debug("input surface not found",
			"locator", locator,
			"textareas", shape.Textareas,
			"editables", shape.Editables)
		return Injection{Surface: SurfaceNone, Shape: shape}, nil
	}

	i.logger.Debug("input surface found",
		"locator", locator,
		"tag", shape.TagName,
		"surface", kind.String())

	fill, err := FillScript(kind, locator, text)
	if err != nil {
		return Injection{}, err
	}

	res, err = exec.ExecuteScript(ctx, fill)
	if err != nil {
		return Injection{}, fmt.Errorf("%w: fill %s: %w", ErrScript, kind, err)
	}

	// The element can disappear between probe and fill during a re-render.
	if ok, _ := res.(bool); !ok {
		i.logger.Debug("input surface vanished before fill", "locator", locator)
		return Injection{Surface: kind, Shape: shape}, nil
	}

	return Injection{Found: true, Surface: kind, Shape: shape}, nil
}

// Submit clicks the control matched by buttonLocator or, when none matches,
// dispatches an Enter keydown on the element matched by inputLocator. The
// page's reaction is not observed.
func (i *Injector) Submit(ctx context.Context, exec Executor, buttonLocator, inputLocator string) (SubmitPath, error) {
	script, err := SubmitScript(buttonLocator, inputLocator)
	if err != nil {
		return SubmitNone, err
	}

	res, err := exec.ExecuteScript(ctx, script)
	if err != nil {
		return SubmitNone, fmt.Errorf("%w: submit: %w", ErrScript, err)
	}

	s, _ := res.(string)
	switch path := SubmitPath(s); path {
	case SubmitClicked, SubmitEnterKey:
		i.logger.Debug("submit triggered", "path", string(path))
		return path, nil
	default:
		i.logger.Debug("submit target not found",
			"button_locator", buttonLocator,
			"input_locator", inputLocator)
		return SubmitNone, nil
	}
}
