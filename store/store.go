// Package store provides the persistent key/value maps of a harvesting
// workspace, backed by RocksDB.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jgraettinger/gorocksdb"
	log "github.com/sirupsen/logrus"

	"github.com/scholarlab/harvest/biblio"
)

// Names of the maps of a workspace. The entry and identifier maps live under
// the data path; the PMC map lives under the resource path.
const (
	EntriesMap = "entries"
	UUIDMap    = "uuid"
	PMCMap     = "pmc_oa"
)

// Error is a failed operation against a named map. It aborts the task which
// observed it, but never the harvest as a whole.
type Error struct {
	Map string
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("map %s: %s: %v", e.Map, e.Op, e.Err)
	}
	return fmt.Sprintf("map %s: %s %q: %v", e.Map, e.Op, e.Key, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// Map is one named key/value map.
type Map struct {
	name string
	path string

	db           *gorocksdb.DB
	options      *gorocksdb.Options
	readOptions  *gorocksdb.ReadOptions
	writeOptions *gorocksdb.WriteOptions
}

// Open opens the named map rooted at |dir|, creating it if needed.
func Open(dir, name string) (*Map, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Map: name, Op: "open", Err: err}
	}

	var options = gorocksdb.NewDefaultOptions()
	options.SetCreateIfMissing(true)

	var path = filepath.Join(dir, name)
	var db, err = gorocksdb.OpenDb(options, path)
	if err != nil {
		options.Destroy()
		return nil, &Error{Map: name, Op: "open", Err: err}
	}
	return newMap(name, path, db, options), nil
}

// OpenReadOnly opens an existing named map for reads only.
func OpenReadOnly(dir, name string) (*Map, error) {
	var options = gorocksdb.NewDefaultOptions()

	var path = filepath.Join(dir, name)
	var db, err = gorocksdb.OpenDbForReadOnly(options, path, false)
	if err != nil {
		options.Destroy()
		return nil, &Error{Map: name, Op: "open", Err: err}
	}
	return newMap(name, path, db, options), nil
}

func newMap(name, path string, db *gorocksdb.DB, options *gorocksdb.Options) *Map {
	return &Map{
		name:         name,
		path:         path,
		db:           db,
		options:      options,
		readOptions:  gorocksdb.NewDefaultReadOptions(),
		writeOptions: gorocksdb.NewDefaultWriteOptions(),
	}
}

// Get returns the value stored under |key|, or nil when absent.
func (m *Map) Get(key string) ([]byte, error) {
	var b, err = m.db.GetBytes(m.readOptions, []byte(key))
	if err != nil {
		return nil, &Error{Map: m.name, Op: "get", Key: key, Err: err}
	}
	return b, nil
}

// Put stores |value| under |key|.
func (m *Map) Put(key string, value []byte) error {
	if err := m.db.Put(m.writeOptions, []byte(key), value); err != nil {
		return &Error{Map: m.name, Op: "put", Key: key, Err: err}
	}
	return nil
}

// Has reports whether |key| is present.
func (m *Map) Has(key string) (bool, error) {
	var b, err = m.Get(key)
	return b != nil, err
}

// Range invokes |fn| for every key/value pair in ascending byte order of
// keys. The slices passed to |fn| are only valid for the duration of the
// call. Iteration stops on the first error returned by |fn|.
func (m *Map) Range(fn func(key, value []byte) error) error {
	var it = m.db.NewIterator(m.readOptions)
	defer it.Close()

	for it.SeekToFirst(); it.Valid(); it.Next() {
		var key, value = it.Key(), it.Value()
		var err = fn(key.Data(), value.Data())
		key.Free()
		value.Free()

		if err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return &Error{Map: m.name, Op: "iterate", Err: err}
	}
	return nil
}

// Len is the exact number of keys, counted by full iteration. RocksDB only
// estimates key counts, and the diagnostic report requires exact totals.
func (m *Map) Len() (int, error) {
	var n int
	var err = m.Range(func(_, _ []byte) error { n++; return nil })
	return n, err
}

// Path returns the on-disk directory of the map.
func (m *Map) Path() string { return m.path }

// Close releases the map and its RocksDB handles.
func (m *Map) Close() {
	m.db.Close()
	m.readOptions.Destroy()
	m.writeOptions.Destroy()
	m.options.Destroy()
}

// Workspace bundles the entry and identifier maps kept under a data path.
type Workspace struct {
	// Entries maps entry id to the serialized entry record.
	Entries *Map
	// UUIDs maps every strong identifier (DOI, PMC ID, PMID, cord_uid, the
	// entry id itself) to the entry id.
	UUIDs *Map

	dir string
}

// OpenWorkspace opens (creating as needed) the maps of the workspace rooted
// at |dataPath|.
func OpenWorkspace(dataPath string) (*Workspace, error) {
	var entries, err = Open(dataPath, EntriesMap)
	if err != nil {
		return nil, err
	}
	uuids, err := Open(dataPath, UUIDMap)
	if err != nil {
		entries.Close()
		return nil, err
	}
	return &Workspace{Entries: entries, UUIDs: uuids, dir: dataPath}, nil
}

// Dir returns the workspace data path.
func (w *Workspace) Dir() string { return w.dir }

// Close closes both maps.
func (w *Workspace) Close() {
	w.Entries.Close()
	w.UUIDs.Close()
}

// GetEntry fetches and decodes the entry stored under |id|.
// It returns nil when the id is unknown.
func (w *Workspace) GetEntry(id string) (*biblio.Entry, error) {
	var b, err = w.Entries.Get(id)
	if err != nil || b == nil {
		return nil, err
	}
	var entry = new(biblio.Entry)
	if err = entry.UnmarshalJSON(b); err != nil {
		return nil, &Error{Map: EntriesMap, Op: "decode", Key: id, Err: err}
	}
	return entry, nil
}

// PutEntry encodes and stores |entry| under its id.
func (w *Workspace) PutEntry(entry *biblio.Entry) error {
	var b, err = entry.MarshalJSON()
	if err != nil {
		return &Error{Map: EntriesMap, Op: "encode", Key: entry.ID, Err: err}
	}
	return w.Entries.Put(entry.ID, b)
}

// ResolveIdentifier maps a strong identifier to its entry id, or returns ""
// when the identifier has not been seen.
func (w *Workspace) ResolveIdentifier(ident string) (string, error) {
	var b, err = w.UUIDs.Get(ident)
	return string(b), err
}

// IndexIdentifiers writes identifier→id for every strong identifier of the
// entry, so that later runs recognize it under any of them.
func (w *Workspace) IndexIdentifiers(entry *biblio.Entry) error {
	for _, ident := range entry.StrongIdentifiers() {
		if err := w.UUIDs.Put(ident, []byte(entry.ID)); err != nil {
			return err
		}
	}
	return nil
}

// Reset closes both maps, removes loose artifact files and sharded subtrees
// under the data path, and re-creates empty maps. It is the only destructive
// operation of the harvester.
func (w *Workspace) Reset() error {
	w.Close()

	var dirents, err = os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", w.dir, err)
	}
	for _, d := range dirents {
		var path = filepath.Join(w.dir, d.Name())

		if d.IsDir() {
			if err = os.RemoveAll(path); err != nil {
				return fmt.Errorf("removing %s: %w", path, err)
			}
			continue
		}
		for _, suffix := range []string{".pdf", ".png", ".nxml", ".xml", ".tar.gz", ".json"} {
			if strings.HasSuffix(d.Name(), suffix) {
				if err = os.Remove(path); err != nil {
					return fmt.Errorf("removing %s: %w", path, err)
				}
				break
			}
		}
	}
	log.WithField("dataPath", w.dir).Info("reset harvesting workspace")

	if w.Entries, err = Open(w.dir, EntriesMap); err != nil {
		return err
	}
	if w.UUIDs, err = Open(w.dir, UUIDMap); err != nil {
		return err
	}
	return nil
}
