package templates

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Validation Result
// =============================================================================

// ValidationResult is the outcome of probing one template against the
// canonical variable tree. Results are recomputed on every call; nothing is
// persisted between validation passes.
type ValidationResult struct {
	Valid bool `json:"valid"`

	// Kind and Error are set on failure. Line carries the 1-based line
	// number for syntax errors when the engine reports one.
	Kind  ErrorKind `json:"error_kind,omitempty"`
	Error string    `json:"error,omitempty"`
	Line  int       `json:"line,omitempty"`

	// RenderedLength and LineCount are set on success.
	RenderedLength int `json:"rendered_length,omitempty"`
	LineCount      int `json:"line_count,omitempty"`
}

// =============================================================================
// Validator
// =============================================================================

// Validator probes templates with the canonical variable tree and
// classifies failures. It holds no mutable state of its own, so repeated
// validation passes over unchanged files yield identical results.
type Validator struct {
	store Store
}

// NewValidator creates a validator over the given template store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// Validate probes one template. Rendering against the canonical tree
// succeeding means valid; failures are classified as syntax,
// undefined-variable, or other.
func (v *Validator) Validate(name string) ValidationResult {
	if !v.store.Exists(name) {
		return ValidationResult{
			Valid: false,
			Kind:  ErrorNotFound,
			Error: fmt.Sprintf("template file not found: %s", name),
		}
	}

	vars := CanonicalVars()
	vars["template_name"] = name

	rendered, err := v.store.Render(name, vars)
	if err != nil {
		var rerr *RenderError
		if errors.As(err, &rerr) {
			return ValidationResult{
				Valid: false,
				Kind:  rerr.Kind,
				Error: rerr.Err.Error(),
				Line:  rerr.Line,
			}
		}
		return ValidationResult{Valid: false, Kind: ErrorOther, Error: err.Error()}
	}

	return ValidationResult{
		Valid:          true,
		RenderedLength: len(rendered),
		LineCount:      strings.Count(rendered, "\n") + 1,
	}
}

// ValidateAll probes every discovered template. Two calls without file
// changes yield identical maps.
func (v *Validator) ValidateAll() (map[string]ValidationResult, error) {
	names, err := v.store.List()
	if err != nil {
		return nil, err
	}

	results := make(map[string]ValidationResult, len(names))
	for _, name := range names {
		results[name] = v.Validate(name)
	}
	return results, nil
}

// =============================================================================
// Template Info
// =============================================================================

// fileStater is implemented by stores backed by real files.
type fileStater interface {
	Stat(name string) (os.FileInfo, error)
}

// Info describes one template file plus its current validation status.
type Info struct {
	Name       string           `json:"name"`
	SizeBytes  int64            `json:"size_bytes"`
	ModifiedAt time.Time        `json:"modified_at"`
	Validation ValidationResult `json:"validation"`
}

// TemplateInfo returns file metadata and a fresh validation result for one
// template. The store must be file-backed.
func (v *Validator) TemplateInfo(name string) (Info, error) {
	stater, ok := v.store.(fileStater)
	if !ok {
		return Info{}, fmt.Errorf("template store for %s does not expose file metadata", name)
	}
	fi, err := stater.Stat(name)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:       name,
		SizeBytes:  fi.Size(),
		ModifiedAt: fi.ModTime(),
		Validation: v.Validate(name),
	}, nil
}

// DescribeAll returns file metadata plus a fresh validation result for
// every discovered template, in store list order.
func (v *Validator) DescribeAll() ([]Info, error) {
	names, err := v.store.List()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(names))
	for _, name := range names {
		info, err := v.TemplateInfo(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ValidateReferenced probes only the named templates and reports whether
// all of them passed. This is the deployment gate: templates not referenced
// by any inventory device are still visible through ValidateAll but do not
// block a run.
func (v *Validator) ValidateReferenced(names []string) (map[string]ValidationResult, bool) {
	results := make(map[string]ValidationResult, len(names))
	allValid := true
	for _, name := range names {
		res := v.Validate(name)
		results[name] = res
		if !res.Valid {
			allValid = false
		}
	}
	return results, allValid
}
