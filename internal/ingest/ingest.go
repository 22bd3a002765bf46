// Package ingest feeds OCR pipeline output into the notes store. An
// external transcriber drops artifacts named after the scan they belong
// to ("page3.png.txt" and "page3.png.json"); this package watches the
// artifacts directory, attaches them to their file rows, materializes
// transcribed pages, repairs the touched chains, and flips the processed
// flag once a scan has both artifacts.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/codex/internal/apperr"
	"github.com/starford/codex/internal/chain"
	"github.com/starford/codex/internal/checksum"
	"github.com/starford/codex/internal/dates"
	"github.com/starford/codex/internal/store"
	"github.com/starford/codex/internal/tracker"
)

// Artifact suffixes produced by the OCR pipeline.
const (
	suffixText = ".txt"
	suffixJSON = ".json"
)

// EventCallback is called after a watcher-driven store change.
// kind is one of "page.transcribed", "file.processed".
type EventCallback func(kind string, data map[string]any)

// Ingestor attaches OCR artifacts to the store.
type Ingestor struct {
	st     *store.Store
	logger *slog.Logger
	cb     EventCallback

	// now supplies the civil day stamped into the edit history; a field
	// so tests can pin it.
	now func() time.Time
}

// New creates an Ingestor. cb may be nil.
func New(st *store.Store, logger *slog.Logger, cb EventCallback) *Ingestor {
	return &Ingestor{st: st, logger: logger, cb: cb, now: time.Now}
}

// Sweep processes every artifact already present under root. It runs at
// startup so artifacts dropped while the service was down are not lost.
func (in *Ingestor) Sweep(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !isArtifact(path) {
			return nil
		}
		in.handleArtifact(ctx, path)
		return nil
	})
}

// Watch starts an fsnotify watcher on the artifacts root and processes
// artifact events until ctx is cancelled. New directories created at
// runtime are added to the watch list and swept for artifacts that
// landed before the watch began.
func (in *Ingestor) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	in.logger.Info("ingest: watcher started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("ingest: watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						in.logger.Warn("ingest: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					if sweepErr := in.Sweep(ctx, ev.Name); sweepErr != nil {
						in.logger.Warn("ingest: sweep new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", sweepErr.Error()))
					}
					continue
				}
			}

			if !isArtifact(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				in.handleArtifact(ctx, ev.Name)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			in.logger.Error("ingest: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// handleArtifact attaches one artifact to its scan. Unmatched artifacts
// are left in place: the scan may simply not be registered yet, and the
// next sweep picks them up.
func (in *Ingestor) handleArtifact(ctx context.Context, path string) {
	scanName, isText := splitArtifact(path)

	f, err := in.st.FileByName(ctx, scanName)
	if errors.Is(err, apperr.ErrNotFound) {
		in.logger.Debug("ingest: no file row for artifact", slog.String("artifact", path))
		return
	}
	if err != nil {
		in.logger.Warn("ingest: file lookup failed", slog.String("artifact", path), slog.String("error", err.Error()))
		return
	}
	if f.FullyProcessed {
		in.logger.Debug("ingest: file already processed", slog.String("path", f.Path))
		return
	}

	if isText {
		err = in.st.SetOCRArtifacts(ctx, f.ID, &path, nil)
	} else {
		err = in.st.SetOCRArtifacts(ctx, f.ID, nil, &path)
	}
	if err != nil {
		in.logger.Warn("ingest: record artifact failed", slog.String("artifact", path), slog.String("error", err.Error()))
		return
	}

	in.recordContentHash(ctx, f)
	if isText {
		in.transcribe(ctx, f, path)
	}
	in.maybeMarkProcessed(ctx, f.ID, f.Path)
}

// recordContentHash fills in the scan's content hash the first time an
// artifact arrives for it. The scan may live outside the artifacts
// directory and be unreadable from here; that is not an error.
func (in *Ingestor) recordContentHash(ctx context.Context, f *store.File) {
	if f.ContentHash != "" {
		return
	}
	sum, err := checksum.SumFile(f.Path)
	if err != nil {
		in.logger.Debug("ingest: scan not readable for hashing", slog.String("path", f.Path))
		return
	}
	if _, err := in.st.UpsertFile(ctx, store.File{Path: f.Path, ContentHash: sum}); err != nil {
		in.logger.Warn("ingest: store content hash failed", slog.String("path", f.Path), slog.String("error", err.Error()))
	}
}

// transcribe materializes transcribed pages for every note the scan
// belongs to and repairs the touched chains.
func (in *Ingestor) transcribe(ctx context.Context, f *store.File, textPath string) {
	raw, err := os.ReadFile(textPath)
	if err != nil {
		in.logger.Warn("ingest: read transcription failed", slog.String("path", textPath), slog.String("error", err.Error()))
		return
	}
	text := string(raw)

	var inferredDate, inferredPrecision *string
	if d, ok := dates.FindInText(text); ok {
		inferredDate, inferredPrecision = &d.Value, &d.Precision
	}

	links, err := in.st.FileMemberships(ctx, f.ID)
	if err != nil {
		in.logger.Warn("ingest: memberships lookup failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		return
	}
	if len(links) == 0 {
		in.logger.Debug("ingest: scan not linked to any note", slog.String("path", f.Path))
		return
	}

	day := in.now().Format("2006-01-02")
	for _, link := range links {
		fileID := f.ID
		pageID, err := in.st.UpsertTranscribedPage(ctx, store.TranscribedPage{
			NoteID:                link.NoteID,
			FileID:                &fileID,
			PageOrder:             link.PageOrder,
			Text:                  text,
			InferredDate:          inferredDate,
			InferredDatePrecision: inferredPrecision,
		}, day)
		if err != nil {
			in.logger.Warn("ingest: upsert transcribed page failed",
				slog.Int64("note_id", link.NoteID), slog.String("error", err.Error()))
			continue
		}

		if inferredDate != nil && in.isFirstPage(ctx, link) {
			in.maybeSetNoteDate(ctx, link.NoteID, *inferredDate, *inferredPrecision)
		}

		if _, err := chain.Rebuild(ctx, in.st, chain.Options{NoteID: link.NoteID, OnlyMissing: true}); err != nil {
			in.logger.Warn("ingest: chain repair failed",
				slog.Int64("note_id", link.NoteID), slog.String("error", err.Error()))
		}

		in.logger.Info("ingest: page transcribed",
			slog.Int64("note_id", link.NoteID),
			slog.Int64("page_id", pageID),
			slog.String("scan", f.Path))
		if in.cb != nil {
			in.cb("page.transcribed", map[string]any{
				"note_id": link.NoteID,
				"page_id": pageID,
				"scan":    f.Path,
			})
		}
	}
}

// isFirstPage reports whether the membership holds the note's lowest
// page_order. Order keys need not start at 1.
func (in *Ingestor) isFirstPage(ctx context.Context, link store.PageLink) bool {
	pages, err := in.st.NotePages(ctx, link.NoteID)
	if err != nil || len(pages) == 0 {
		return false
	}
	return pages[0].PageOrder == link.PageOrder
}

// maybeSetNoteDate promotes the first page's inferred date to the note's
// creation date. A date already on the note, however it got there, wins.
func (in *Ingestor) maybeSetNoteDate(ctx context.Context, noteID int64, value, precision string) {
	n, err := in.st.GetNote(ctx, noteID)
	if err != nil {
		in.logger.Warn("ingest: note lookup failed", slog.Int64("note_id", noteID), slog.String("error", err.Error()))
		return
	}
	if n.DateCreated != nil {
		return
	}
	if err := in.st.SetNoteDate(ctx, noteID, value, precision); err != nil {
		in.logger.Warn("ingest: set note date failed", slog.Int64("note_id", noteID), slog.String("error", err.Error()))
	}
}

// maybeMarkProcessed flips the processed flag once both artifacts are on
// record.
func (in *Ingestor) maybeMarkProcessed(ctx context.Context, fileID int64, path string) {
	f, err := in.st.FileByPath(ctx, path)
	if err != nil {
		in.logger.Warn("ingest: refetch file failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if f.OCRTextPath == nil || f.OCRJSONPath == nil {
		return
	}
	res, err := tracker.Mark(ctx, in.st, tracker.Selector{IDs: []int64{fileID}}, true)
	if err != nil {
		in.logger.Warn("ingest: mark processed failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if res.Changed > 0 {
		in.logger.Info("ingest: file fully processed", slog.String("path", path))
		if in.cb != nil {
			in.cb("file.processed", map[string]any{"path": path})
		}
	}
}

func isArtifact(path string) bool {
	return strings.HasSuffix(path, suffixText) || strings.HasSuffix(path, suffixJSON)
}

// splitArtifact returns the scan base name an artifact belongs to and
// whether the artifact is the text transcription.
func splitArtifact(path string) (scanName string, isText bool) {
	base := filepath.Base(path)
	if strings.HasSuffix(base, suffixText) {
		return strings.TrimSuffix(base, suffixText), true
	}
	return strings.TrimSuffix(base, suffixJSON), false
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
