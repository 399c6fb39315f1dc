package vault

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Change kinds reported by Watch.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// ExternalChange describes a note file modified outside this process.
type ExternalChange struct {
	Kind    string
	OwnerID string
	NoteID  string
}

// ChangeCallback is called for each external note change.
type ChangeCallback func(ExternalChange)

// Watch starts an fsnotify watcher on the vault root and reports note files
// changed by other processes until ctx is cancelled. Writes made through
// this Vault are skipped. Nothing is merged: callers decide whether to
// reload.
func (v *Vault) Watch(ctx context.Context, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, v.root); err != nil {
		return err
	}

	logger.Info("vault watcher: started", slog.String("root", v.root))

	for {
		select {
		case <-ctx.Done():
			logger.Info("vault watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			// New owner directories are added to the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("vault watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			rel, relErr := filepath.Rel(v.root, ev.Name)
			if relErr != nil || !strings.HasSuffix(rel, ".md") {
				continue
			}
			ownerID, noteID, ok := splitRel(rel)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := os.ReadFile(ev.Name)
				if readErr != nil {
					if !errors.Is(readErr, fs.ErrNotExist) {
						logger.Warn("vault watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					}
					continue
				}
				if v.isOwnWrite(filepath.ToSlash(rel), data) {
					continue
				}
				kind := ChangeUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = ChangeCreated
				}
				logger.Debug("vault watcher: external change", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(ExternalChange{Kind: kind, OwnerID: ownerID, NoteID: noteID})
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if v.isOwnWrite(filepath.ToSlash(rel), nil) {
					continue
				}
				logger.Debug("vault watcher: external delete", slog.String("path", rel))
				if cb != nil {
					cb(ExternalChange{Kind: ChangeDeleted, OwnerID: ownerID, NoteID: noteID})
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("vault watcher: error", slog.String("error", watchErr.Error()))
		}
	}
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
