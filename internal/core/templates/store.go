// Package templates renders device configuration from per-role templates
// and validates every template against a canonical variable tree before a
// deployment is allowed to touch a device.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
)

// Ext is the template file extension. Template names are handled bare;
// the extension is appended only when touching the filesystem.
const Ext = ".tmpl"

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrTemplateNotFound is returned when a named template has no file.
	ErrTemplateNotFound = errors.New("template not found")
)

// ErrorKind classifies a template failure.
type ErrorKind string

const (
	// ErrorSyntax means the template body failed to parse.
	ErrorSyntax ErrorKind = "syntax"
	// ErrorUndefined means the template referenced a variable absent from
	// the input. During validation this can signal that the canonical tree
	// needs extension rather than a template bug.
	ErrorUndefined ErrorKind = "undefined_variable"
	// ErrorNotFound means the template file does not exist.
	ErrorNotFound ErrorKind = "not_found"
	// ErrorOther covers any remaining rendering fault.
	ErrorOther ErrorKind = "other"
)

// RenderError wraps a template failure with its classification.
type RenderError struct {
	Template string
	Kind     ErrorKind
	Line     int // 1-based line number for syntax errors, 0 when unknown
	Err      error
}

func (e *RenderError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("template %s: %s error at line %d: %v", e.Template, e.Kind, e.Line, e.Err)
	}
	return fmt.Sprintf("template %s: %s error: %v", e.Template, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Store Interface
// =============================================================================

// Store is the template collaborator seen by the renderer and validator.
type Store interface {
	// List returns the names of all discovered templates, sorted.
	List() ([]string, error)

	// Exists reports whether a named template is present.
	Exists(name string) bool

	// Render loads a template and executes it with the given variables.
	// Failures are returned as *RenderError.
	Render(name string, vars map[string]any) (string, error)
}

// =============================================================================
// DirStore
// =============================================================================

// DirStore implements Store over a directory of *.tmpl files with an owned
// parse cache. The cache is keyed by template name and only changes through
// Invalidate and ClearCache; rendering never mutates shared state beyond it.
type DirStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewDirStore creates a store reading templates from dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{
		dir:   dir,
		cache: make(map[string]*template.Template),
	}
}

// List returns the bare names of every *.tmpl file in the directory, sorted.
func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list templates in %s: %w", s.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), Ext))
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether the named template file is present.
func (s *DirStore) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Render executes the named template with vars. Undefined variable access
// fails rather than rendering "<no value>"; all failures come back as
// *RenderError.
func (s *DirStore) Render(name string, vars map[string]any) (string, error) {
	tmpl, rerr := s.load(name)
	if rerr != nil {
		return "", rerr
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", classifyExecError(name, err)
	}
	return buf.String(), nil
}

// Invalidate drops one template from the parse cache. The next Render
// re-reads it from disk.
func (s *DirStore) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, name)
}

// ClearCache drops the whole parse cache.
func (s *DirStore) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*template.Template)
}

// load returns the parsed template, from cache when possible.
func (s *DirStore) load(name string) (*template.Template, *RenderError) {
	s.mu.Lock()
	if tmpl, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return tmpl, nil
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &RenderError{
				Template: name,
				Kind:     ErrorNotFound,
				Err:      fmt.Errorf("%w: %s", ErrTemplateNotFound, name),
			}
		}
		return nil, &RenderError{Template: name, Kind: ErrorOther, Err: err}
	}

	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(netFuncs()).
		Parse(string(data))
	if err != nil {
		return nil, &RenderError{
			Template: name,
			Kind:     ErrorSyntax,
			Line:     errorLine(err),
			Err:      err,
		}
	}

	s.mu.Lock()
	s.cache[name] = tmpl
	s.mu.Unlock()
	return tmpl, nil
}

// Stat returns filesystem metadata for the named template.
func (s *DirStore) Stat(name string) (os.FileInfo, error) {
	info, err := os.Stat(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, err
	}
	return info, nil
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.dir, name+Ext)
}

// =============================================================================
// Error Classification
// =============================================================================

// undefinedMarkers are the engine messages that indicate a reference to a
// name absent from the variable tree.
var undefinedMarkers = []string{
	"map has no entry for key",
	"can't evaluate field",
	"nil data; no entry for key",
}

// classifyExecError sorts an execution failure into undefined-variable vs
// other runtime fault.
func classifyExecError(name string, err error) *RenderError {
	msg := err.Error()
	for _, marker := range undefinedMarkers {
		if strings.Contains(msg, marker) {
			return &RenderError{Template: name, Kind: ErrorUndefined, Err: err}
		}
	}
	return &RenderError{Template: name, Kind: ErrorOther, Err: err}
}

// lineRe matches the ":LINE:" position the engine embeds in its messages.
var lineRe = regexp.MustCompile(`:(\d+)(?::\d+)?:`)

// errorLine extracts the 1-based line number from an engine error, 0 when
// none is reported.
func errorLine(err error) int {
	m := lineRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n
}
