// Package ingest registers cover images as pending records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"covercat/internal/coverimage"
	"covercat/internal/logging"
	"covercat/internal/records"
)

// Result summarizes a directory scan.
type Result struct {
	Added      []string `json:"added"`
	Duplicates []string `json:"duplicates"`
	Ignored    []string `json:"ignored"`
}

// Ingester inserts one record per supported cover file.
type Ingester struct {
	store      *records.Store
	firstStage string
	logger     *slog.Logger
}

// New constructs an Ingester that starts records at firstStage.
func New(store *records.Store, firstStage string, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:      store,
		firstStage: firstStage,
		logger:     logging.NewComponentLogger(logger, "ingest"),
	}
}

// RecordID derives the record id from a cover file name: the base name
// without extension.
func RecordID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// Scan inserts every supported image directly under dir, in name order.
// Existing ids are reported as duplicates and left untouched.
func (i *Ingester) Scan(ctx context.Context, dir string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, fmt.Errorf("scan covers: %w", err)
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].Name() < entries[b].Name() })

	var result Result
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !coverimage.Supported(path) {
			result.Ignored = append(result.Ignored, entry.Name())
			continue
		}
		id, added, err := i.AddFile(ctx, path)
		if err != nil {
			return result, err
		}
		if added {
			result.Added = append(result.Added, id)
		} else {
			result.Duplicates = append(result.Duplicates, id)
		}
	}
	i.logger.Info("cover scan complete",
		logging.String("dir", dir),
		logging.Int("added", len(result.Added)),
		logging.Int("duplicates", len(result.Duplicates)),
		logging.Int("ignored", len(result.Ignored)),
		logging.String(logging.FieldEventType, "ingest_scan"),
	)
	return result, nil
}

// AddFile inserts a record for one cover. added is false when a record with
// the same id already exists.
func (i *Ingester) AddFile(ctx context.Context, path string) (id string, added bool, err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", path, err)
	}
	id = RecordID(abs)
	if id == "" {
		return "", false, fmt.Errorf("derive record id from %s", path)
	}
	_, err = i.store.Insert(ctx, id, i.firstStage, records.Attributes{records.AttrImagePath: abs})
	if errors.Is(err, records.ErrDuplicate) {
		i.logger.Debug("cover already ingested", logging.String(logging.FieldRecordID, id), logging.String("path", abs))
		return id, false, nil
	}
	if err != nil {
		return "", false, err
	}
	i.logger.Info("cover ingested",
		logging.String(logging.FieldRecordID, id),
		logging.String("path", abs),
		logging.String(logging.FieldEventType, "ingested"),
	)
	return id, true, nil
}

// Watch inserts covers as they appear in dir until ctx is cancelled. onAdd,
// when set, is called with every newly inserted id.
func (i *Ingester) Watch(ctx context.Context, dir string, onAdd func(id string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	i.logger.Info("watching covers", logging.String("dir", dir), logging.String(logging.FieldEventType, "ingest_watch"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") || !coverimage.Supported(event.Name) {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			id, added, err := i.AddFile(ctx, event.Name)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logging.WarnWithContext(i.logger, "cover ingest failed", "ingest_failed",
					logging.String("path", event.Name),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check database access"),
				)
				continue
			}
			if added && onAdd != nil {
				onAdd(id)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(i.logger, "cover watcher error", "ingest_watch_error", logging.Error(err))
		}
	}
}
