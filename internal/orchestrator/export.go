package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"vaultx/internal/domain"
	"vaultx/internal/history"
	"vaultx/internal/media"
	"vaultx/pkg/zip"
)

// ManifestName is the history listing written at the root of an export.
const ManifestName = "history.json"

// LoadMedia reads the bytes behind a history entry.
func (o *Orchestrator) LoadMedia(ctx context.Context, id string) (domain.Media, error) {
	r, ok := o.history.Get(id)
	if !ok {
		return domain.Media{}, fmt.Errorf("%w: result %q", domain.ErrNotFound, id)
	}
	return media.Load(ctx, o.media, r.MediaURL)
}

// ExportHistory writes a zip archive holding every loadable result plus a
// manifest in the persisted history format whose urls point at the archived
// files. Entries whose media cannot be read are listed with their original
// url. It returns the number of media files written.
func (o *Orchestrator) ExportHistory(ctx context.Context, w io.Writer) (int, error) {
	items := o.history.All()
	entries := make([]zip.Entry, 0, len(items)+1)
	manifest := make([]domain.GenerationResult, 0, len(items))
	for _, r := range items {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		m, err := media.Load(ctx, o.media, r.MediaURL)
		if err != nil {
			o.logger.Warn().Err(err).Str("id", r.ID).Msg("orchestrator: export skipped media")
			manifest = append(manifest, r)
			continue
		}
		name := media.ObjectKey(r.ID, m.MIMEType)
		entries = append(entries, zip.Entry{Name: name, Modified: r.CreatedAt, Data: m.Data})
		r.MediaURL = name
		manifest = append(manifest, r)
	}

	blob, err := history.Encode(manifest)
	if err != nil {
		return 0, err
	}
	files := len(entries)
	entries = append(entries, zip.Entry{Name: ManifestName, Modified: time.Now(), Data: []byte(blob)})
	if err := zip.Write(w, entries); err != nil {
		return 0, fmt.Errorf("orchestrator: export: %w", err)
	}
	o.logger.Info().Int("files", files).Int("results", len(items)).Msg("orchestrator: history exported")
	return files, nil
}
