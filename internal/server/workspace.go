// Package server exposes workspace validation over HTTP: document listing,
// on-demand pipeline runs, graph and HTML views, and run history, behind
// the auth and rate-limit middleware.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"fieldmap/internal/fetch"
	"fieldmap/internal/graph"
	"fieldmap/internal/mapdoc"
	"fieldmap/internal/resolver"
	"fieldmap/internal/validate"
)

// ErrDocumentNotFound reports a name with no matching workspace document.
var ErrDocumentNotFound = errors.New("document not found")

// Workspace lists and validates the mapping documents in one directory.
type Workspace struct {
	dir      string
	rulesDir string
	source   *fetch.Source
	logger   *slog.Logger
}

// NewWorkspace creates a workspace over dir. rulesDir may name a directory
// of custom Starlark rules; an absent directory is not an error.
func NewWorkspace(dir, rulesDir string, source *fetch.Source, logger *slog.Logger) *Workspace {
	if source == nil {
		source = fetch.Local()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{dir: dir, rulesDir: rulesDir, source: source, logger: logger}
}

// List returns the document file names in the workspace root, sorted.
func (ws *Workspace) List() ([]string, error) {
	entries, err := os.ReadDir(ws.dir)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), mapdoc.DocumentSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Path resolves a document name inside the workspace. The suffix may be
// omitted; names that would escape the workspace directory are rejected.
func (ws *Workspace) Path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", ErrDocumentNotFound
	}
	for _, candidate := range []string{name, name + mapdoc.DocumentSuffix} {
		p := filepath.Join(ws.dir, candidate)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", ErrDocumentNotFound
}

// Validate runs the full pipeline on one document. Parse and resolution
// failures degrade to a single-diagnostic error Result so that every
// outcome can be recorded; only an unknown name returns an error.
func (ws *Workspace) Validate(ctx context.Context, name string) (*validate.Result, error) {
	path, err := ws.Path(name)
	if err != nil {
		return nil, err
	}

	doc, err := mapdoc.ParseFile(path)
	if err != nil {
		return validate.ErrorResult(path, "parse", err), nil
	}

	// Fresh resolver per run: schema files are re-read on every validation,
	// while the fetch source keeps its remote clients across runs.
	schemas, err := resolver.NewWithSource(ws.source).Resolve(ctx, filepath.Dir(path), doc)
	if err != nil {
		return validate.ErrorResult(path, "resolve", err), nil
	}

	v := validate.New()
	v.Append(ws.customRules()...)
	return v.Validate(path, doc, schemas), nil
}

// Model parses a document and builds its visualization model.
func (ws *Workspace) Model(name string) (*graph.Model, error) {
	path, err := ws.Path(name)
	if err != nil {
		return nil, err
	}
	doc, err := mapdoc.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return graph.Build(doc), nil
}

func (ws *Workspace) customRules() []validate.Rule {
	if ws.rulesDir == "" {
		return nil
	}
	rules, err := validate.LoadCustomRules(ws.rulesDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ws.logger.Warn("load custom rules", "dir", ws.rulesDir, "error", err)
		}
		return nil
	}
	return rules
}
