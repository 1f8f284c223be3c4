// Package snapshot persists the last-published loadout per combination so a
// run can tell which records changed since the previous one.
//
// Two backends share the Store interface: a flat JSON object file (the
// default, last_meta.json) and an SQLite table for hosts that already keep
// their state in a database. Open picks one from the path extension.
//
//	st, err := snapshot.Open("last_meta.json", logger)
//	prev := st.Load(ctx)          // never fails; bad state reads as empty
//	...
//	err = st.Save(ctx, snapshot.Merge(prev, updated))
package snapshot

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/hazyhaar/metawatch/loadout"
)

// Entry is the persisted state of one combination. Image and date are
// deliberately absent: they do not take part in change detection.
type Entry struct {
	Gun   string   `json:"gun"`
	Class []string `json:"class"`
	Mode  string   `json:"mode"`
	Range string   `json:"range"`

	// MessageID is the chat message that announced this entry, when known.
	MessageID string `json:"message_id,omitempty"`
}

// SameContent reports whether e and o announce the same loadout.
func (e Entry) SameContent(o Entry) bool {
	return e.Gun == o.Gun && slices.Equal(e.Class, o.Class)
}

// Map is the full snapshot keyed by loadout.Combination.Key.
type Map map[string]Entry

// EntryFor builds the comparison tuple for a record.
func EntryFor(r loadout.Record) Entry {
	class := r.Attachments
	if class == nil {
		class = []string{}
	}
	return Entry{
		Gun:   r.DisplayName(),
		Class: class,
		Mode:  r.Category,
		Range: r.SubCategory,
	}
}

// Merge returns prev overlaid with updated. Keys absent from updated keep
// their previous entry.
func Merge(prev, updated Map) Map {
	out := make(Map, len(prev)+len(updated))
	for k, v := range prev {
		out[k] = v
	}
	for k, v := range updated {
		out[k] = v
	}
	return out
}

// Store loads and saves a snapshot Map.
type Store interface {
	// Load returns the stored snapshot. Missing, empty or unreadable state
	// yields an empty Map; problems are logged, never returned.
	Load(ctx context.Context) Map
	// Save replaces the stored snapshot with m.
	Save(ctx context.Context, m Map) error
	Close() error
}

// Open returns a SQLiteStore for paths ending in .db, .sqlite or .sqlite3,
// and a FileStore otherwise.
func Open(path string, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lower := strings.ToLower(path)
	for _, ext := range []string{".db", ".sqlite", ".sqlite3"} {
		if strings.HasSuffix(lower, ext) {
			return OpenSQLite(path, logger)
		}
	}
	return NewFileStore(path, logger), nil
}

// ReadOnly wraps s so Save only logs what would have been written. Dry runs
// use it to leave the stored state untouched.
func ReadOnly(s Store, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return readOnly{Store: s, logger: logger}
}

type readOnly struct {
	Store
	logger *slog.Logger
}

func (r readOnly) Save(_ context.Context, m Map) error {
	r.logger.Info("snapshot: read-only, save skipped", "entries", len(m))
	return nil
}
