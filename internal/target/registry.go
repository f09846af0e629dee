package target

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrUnknownTarget is returned when an id is not part of the registry.
var ErrUnknownTarget = errors.New("unknown target")

// Registry is the process-wide, read-only target catalogue. Order is the
// fixed dispatch order.
type Registry struct {
	targets []Target
	index   map[string]int
}

// NewRegistry validates targets and builds a registry. Targets keep the
// order they are given in.
func NewRegistry(targets []Target) (*Registry, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("registry needs at least one target")
	}

	validate := validator.New()
	r := &Registry{
		targets: make([]Target, 0, len(targets)),
		index:   make(map[string]int, len(targets)),
	}

	browsers := 0
	for i, t := range targets {
		t.ID = strings.TrimSpace(t.ID)
		if t.Kind == "" {
			t.Kind = KindAutomation
		}
		if err := validate.Struct(t); err != nil {
			return nil, fmt.Errorf("target %d (%q): %w", i, t.ID, err)
		}
		if _, dup := r.index[t.ID]; dup {
			return nil, fmt.Errorf("duplicate target id %q", t.ID)
		}
		if t.IsBrowser() {
			browsers++
			if browsers > 1 {
				return nil, fmt.Errorf("at most one browser target is allowed, found another at %q", t.ID)
			}
		}
		r.index[t.ID] = len(r.targets)
		r.targets = append(r.targets, t)
	}

	return r, nil
}

// Default returns the registry built from Defaults.
func Default() *Registry {
	r, err := NewRegistry(Defaults())
	if err != nil {
		// The built-in table is covered by tests.
		panic(err)
	}
	return r
}

// fileFormat is the on-disk layout of a targets file.
type fileFormat struct {
	Targets []Target `yaml:"targets"`
}

// LoadFile reads a YAML targets table that replaces the built-in catalogue.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var raw fileFormat
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse targets file: %w", err)
	}

	r, err := NewRegistry(raw.Targets)
	if err != nil {
		return nil, fmt.Errorf("targets file %s: %w", path, err)
	}
	return r, nil
}

// All returns every target in dispatch order.
func (r *Registry) All() []Target {
	out := make([]Target, len(r.targets))
	copy(out, r.targets)
	return out
}

// Automation returns the chat application targets in dispatch order.
func (r *Registry) Automation() []Target {
	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		if !t.IsBrowser() {
			out = append(out, t)
		}
	}
	return out
}

// IDs returns the target identifiers in dispatch order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.targets))
	for i, t := range r.targets {
		ids[i] = t.ID
	}
	return ids
}

// Lookup finds a target by id.
func (r *Registry) Lookup(id string) (Target, bool) {
	i, ok := r.index[id]
	if !ok {
		return Target{}, false
	}
	return r.targets[i], true
}

// MustLookup is Lookup returning ErrUnknownTarget for a missing id.
func (r *Registry) MustLookup(id string) (Target, error) {
	t, ok := r.Lookup(id)
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownTarget, id)
	}
	return t, nil
}

// Len returns the number of targets.
func (r *Registry) Len() int {
	return len(r.targets)
}
