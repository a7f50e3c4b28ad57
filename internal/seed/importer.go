package seed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/linkorder/internal/linkservice"
	"github.com/starford/linkorder/internal/metrics"
	"github.com/starford/linkorder/internal/models"
	"github.com/starford/linkorder/internal/storage"
)

// ActorID is recorded as the creator of links made by an import.
const ActorID = "seed"

// Service is the subset of the link service an import drives.
type Service interface {
	UpsertLinkType(ctx context.Context, lt models.LinkType) (*models.LinkType, error)
	UpsertEntityType(ctx context.Context, et models.EntityType) (*models.EntityType, error)
	UpsertEntityByKey(ctx context.Context, key, entityTypeID string, props map[string]any) (*models.Entity, bool, error)
	EntityByKey(ctx context.Context, key string) (*models.Entity, error)
	EnsureOrderedLink(ctx context.Context, p linkservice.CreateLinkParams) (*models.Link, *models.Group, bool, error)
}

// ImportLog remembers which version of each seed file was imported.
type ImportLog interface {
	ImportChecksums(ctx context.Context) (map[string]string, error)
	RecordImport(ctx context.Context, path, checksum string) error
}

// Result counts what an import changed.
type Result struct {
	Files           int `json:"files"`
	LinkTypes       int `json:"linkTypes"`
	EntityTypes     int `json:"entityTypes"`
	EntitiesCreated int `json:"entitiesCreated"`
	EntitiesUpdated int `json:"entitiesUpdated"`
	LinksCreated    int `json:"linksCreated"`
	LinksSkipped    int `json:"linksSkipped"`
}

func (r *Result) add(o Result) {
	r.Files += o.Files
	r.LinkTypes += o.LinkTypes
	r.EntityTypes += o.EntityTypes
	r.EntitiesCreated += o.EntitiesCreated
	r.EntitiesUpdated += o.EntitiesUpdated
	r.LinksCreated += o.LinksCreated
	r.LinksSkipped += o.LinksSkipped
}

// Importer applies seed files to the link service. Imports run one at a
// time whether they come from Sync, the watcher or an upload.
type Importer struct {
	mu     sync.Mutex
	svc    Service
	log    ImportLog
	files  storage.Provider
	logger *slog.Logger
}

// NewImporter creates an importer reading from files.
func NewImporter(svc Service, log ImportLog, files storage.Provider, logger *slog.Logger) *Importer {
	return &Importer{svc: svc, log: log, files: files, logger: logger}
}

// Files returns the seed files the importer reads.
func (im *Importer) Files() storage.Provider { return im.files }

// Sync imports every seed file whose content changed since its last
// import. Files that fail because they reference entities declared in a
// later file are retried after the others; files that still fail are
// logged, left unrecorded and retried on the next Sync.
func (im *Importer) Sync(ctx context.Context) (Result, error) {
	var total Result

	files, err := im.files.List("")
	if err != nil {
		return total, err
	}
	checksums, err := im.log.ImportChecksums(ctx)
	if err != nil {
		return total, err
	}

	var pending []storage.File
	for _, f := range files {
		if checksums[f.Path] != f.Checksum {
			pending = append(pending, f)
		}
	}

	for len(pending) > 0 {
		var failed []storage.File
		errs := make(map[string]error)
		for _, f := range pending {
			res, err := im.importFile(ctx, f.Path)
			if err != nil {
				if ctx.Err() != nil {
					return total, ctx.Err()
				}
				im.logger.Debug("sync: import deferred", slog.String("path", f.Path), slog.String("error", err.Error()))
				failed = append(failed, f)
				errs[f.Path] = err
				continue
			}
			total.add(res)
		}
		if len(failed) == len(pending) {
			for _, f := range failed {
				im.logger.Warn("sync: import failed", slog.String("path", f.Path), slog.String("error", errs[f.Path].Error()))
				metrics.SeedImports.WithLabelValues(metrics.ResultError).Inc()
			}
			break
		}
		pending = failed
	}
	return total, nil
}

// ImportFile imports one seed file unless its content is unchanged since
// the last import.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	res, err := im.importFile(ctx, path)
	if err != nil {
		metrics.SeedImports.WithLabelValues(metrics.ResultError).Inc()
	}
	return res, err
}

func (im *Importer) importFile(ctx context.Context, path string) (Result, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	data, err := im.files.Read(path)
	if err != nil {
		return Result{}, err
	}
	sum := storage.Checksum(data)
	checksums, err := im.log.ImportChecksums(ctx)
	if err != nil {
		return Result{}, err
	}
	if checksums[path] == sum {
		return Result{}, nil
	}

	doc, err := Parse(data)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", path, err)
	}
	res, err := Apply(ctx, im.svc, doc)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	if err := im.log.RecordImport(ctx, path, sum); err != nil {
		return res, err
	}
	res.Files = 1
	metrics.SeedImports.WithLabelValues(metrics.ResultOK).Inc()
	im.logger.Info("seed: imported",
		slog.String("path", path),
		slog.Int("entities_created", res.EntitiesCreated),
		slog.Int("links_created", res.LinksCreated),
		slog.Int("links_skipped", res.LinksSkipped),
	)
	return res, nil
}

// Apply writes a parsed document through svc. Link types go first, then
// entity types, entities and finally links. A link whose source, type and
// target already exist as a live link is skipped, so applying the same
// document twice changes nothing the second time.
func Apply(ctx context.Context, svc Service, doc *Document) (Result, error) {
	var res Result

	for _, lt := range doc.LinkTypes {
		_, err := svc.UpsertLinkType(ctx, models.LinkType{
			ID:          lt.ID,
			Title:       lt.Title,
			PluralTitle: lt.PluralTitle,
			Description: lt.Description,
		})
		if err != nil {
			return res, fmt.Errorf("link type %s: %w", lt.ID, err)
		}
		res.LinkTypes++
	}

	for _, et := range doc.EntityTypes {
		_, err := svc.UpsertEntityType(ctx, models.EntityType{
			ID:            et.ID,
			Title:         et.Title,
			OutgoingLinks: et.OutgoingLinks,
		})
		if err != nil {
			return res, fmt.Errorf("entity type %s: %w", et.ID, err)
		}
		res.EntityTypes++
	}

	for _, e := range doc.Entities {
		_, created, err := svc.UpsertEntityByKey(ctx, e.Key, e.Type, e.Properties)
		if err != nil {
			return res, fmt.Errorf("entity %s: %w", e.Key, err)
		}
		if created {
			res.EntitiesCreated++
		} else {
			res.EntitiesUpdated++
		}
	}

	for _, l := range doc.Links {
		created, err := applyLink(ctx, svc, l)
		if err != nil {
			return res, fmt.Errorf("link %s -%s-> %s: %w", l.Source, l.LinkType, l.Target, err)
		}
		if created {
			res.LinksCreated++
		} else {
			res.LinksSkipped++
		}
	}
	return res, nil
}

func applyLink(ctx context.Context, svc Service, l LinkSpec) (bool, error) {
	src, err := svc.EntityByKey(ctx, l.Source)
	if err != nil {
		return false, err
	}
	dst, err := svc.EntityByKey(ctx, l.Target)
	if err != nil {
		return false, err
	}
	_, _, created, err := svc.EnsureOrderedLink(ctx, linkservice.CreateLinkParams{
		SourceEntityID: src.ID,
		LinkTypeID:     l.LinkType,
		TargetEntityID: dst.ID,
		Index:          l.Index,
		ActorID:        ActorID,
		Properties:     l.Properties,
	})
	return created, err
}
