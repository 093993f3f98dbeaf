package resolver

import (
	"context"

	"golang.org/x/sync/errgroup"

	"fieldmap/internal/fetch"
	"fieldmap/internal/mapdoc"
)

// Schemas bundles both resolved schema views for one document.
type Schemas struct {
	API    *APISchema
	Tables *TableSchema
}

// Resolver owns the per-file caches for both schema domains. A single
// Resolver may serve many documents; repeated imports of the same file are
// parsed once.
type Resolver struct {
	api    *APIResolver
	tables *TableResolver
}

// New creates a Resolver with empty caches, reading local files only.
func New() *Resolver {
	return NewWithSource(fetch.Local())
}

// NewWithSource creates a Resolver whose schema files are read through the
// given source; documents may then import s3://, gs://, and az:// refs.
func NewWithSource(source *fetch.Source) *Resolver {
	return &Resolver{
		api:    NewAPIResolverWithSource(source),
		tables: NewTableResolverWithSource(source),
	}
}

// API resolves the document's API reference alone.
func (r *Resolver) API(ctx context.Context, baseDir string, ref mapdoc.APIRef) (*APISchema, error) {
	return r.api.Resolve(ctx, baseDir, ref)
}

// Tables resolves the document's table references alone.
func (r *Resolver) Tables(ctx context.Context, baseDir string, refs []mapdoc.TableRef) (*TableSchema, error) {
	return r.tables.Resolve(ctx, baseDir, refs)
}

// Resolve resolves both of the document's schema imports. The two domains
// share nothing and run in parallel; the first failure cancels the other and
// is returned. File paths inside the document are taken relative to baseDir.
func (r *Resolver) Resolve(ctx context.Context, baseDir string, doc *mapdoc.Document) (*Schemas, error) {
	g, gctx := errgroup.WithContext(ctx)
	schemas := &Schemas{}

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		api, err := r.api.Resolve(gctx, baseDir, doc.API)
		if err != nil {
			return err
		}
		schemas.API = api
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		tables, err := r.tables.Resolve(gctx, baseDir, doc.Tables)
		if err != nil {
			return err
		}
		schemas.Tables = tables
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return schemas, nil
}
