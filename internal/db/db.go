// Package db is the installed-package database: a single JSON object
// mapping "{name}-{version}" to an InstalledRecord, mutated exclusively
// through this package and written with write-to-temp-then-rename so
// readers never observe a torn file.
//
// The atomic-write idiom is lifted directly from the teacher's build and
// install paths (github.com/google/renameio.WriteFile), which is also
// where the directory-based lock pattern in lock.go comes from in spirit
// — the teacher locks nothing (its content is append-only, derived
// state), but the rename-for-atomicity discipline is identical.
package db

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg"
	"golang.org/x/xerrors"
)

// DB is the installed-package database at a single on-disk path.
type DB struct {
	path string
}

// Open returns a DB handle for the database file at path. The file need
// not exist yet; the first mutation creates it.
func Open(path string) *DB {
	return &DB{path: path}
}

// Path returns the on-disk location of the database file.
func (d *DB) Path() string { return d.path }

func (d *DB) withLock(fn func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error)) error {
	lock := newDirLock(d.path)
	if err := lock.acquire(50, 100*time.Millisecond); err != nil {
		return err
	}
	defer lock.release()

	records, err := d.readLocked()
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil // read-only operation
	}
	return d.writeLocked(updated)
}

func (d *DB) readLocked() (map[string]porg.InstalledRecord, error) {
	b, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]porg.InstalledRecord{}, nil
		}
		return nil, xerrors.Errorf("reading db: %w", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return map[string]porg.InstalledRecord{}, nil
	}
	var records map[string]porg.InstalledRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, perr.DBCorrupt.Newf("unmarshal %s: %v", d.path, err)
	}
	return records, nil
}

// writeLocked serializes records sorted by key (for diff-friendliness)
// and writes them atomically. The prior file stays intact if encoding or
// the rename fails.
func (d *DB) writeLocked(records map[string]porg.InstalledRecord) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return err
	}
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// encoding/json.Marshal on a map already sorts keys, but records is a
	// plain map[string]T — build an ordered intermediate so the encoder's
	// implicit map-sort and our explicit sort agree even if someone swaps
	// the representation later.
	ordered := make(map[string]porg.InstalledRecord, len(records))
	for _, k := range keys {
		ordered[k] = records[k]
	}
	b, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(d.path, b, 0o644)
}

// matches implements the uniform partial-key rule of spec.md §4.B: a
// stored key k matches query q if k == q, k starts with q + "-", or the
// record's Name field equals q.
func matches(k string, rec porg.InstalledRecord, q string) bool {
	if k == q {
		return true
	}
	if strings.HasPrefix(k, q+"-") {
		return true
	}
	return rec.Name == q
}

// Register inserts/replaces the record for name-version. Per the
// single-version invariant, any other record whose Name equals name is
// removed first, so at most one version of a given package exists after
// Register returns.
func (d *DB) Register(name, version, prefix string, meta map[string]string) error {
	if prefix != "/" {
		if err := os.MkdirAll(prefix, 0o755); err != nil {
			return perr.InvalidPrefix.Newf("prefix %s not creatable: %v", prefix, err)
		}
	}
	return d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		for k, rec := range records {
			if rec.Name == name {
				delete(records, k)
			}
		}
		rec := porg.InstalledRecord{
			Name:        name,
			Version:     version,
			Prefix:      prefix,
			InstalledAt: time.Now().UTC(),
			Metadata:    meta,
		}
		if deps, ok := meta["__deps"]; ok {
			rec.Dependencies = strings.Split(deps, ",")
			delete(meta, "__deps")
		}
		records[rec.Key()] = rec
		return records, nil
	})
}

// RegisterRecord inserts rec verbatim (used by callers, e.g. the
// resolver/upgrade path, that already have dependency lists to attach).
func (d *DB) RegisterRecord(rec porg.InstalledRecord) error {
	return d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		for k, r := range records {
			if r.Name == rec.Name {
				delete(records, k)
			}
		}
		if rec.InstalledAt.IsZero() {
			rec.InstalledAt = time.Now().UTC()
		}
		records[rec.Key()] = rec
		return records, nil
	})
}

// Unregister removes every record matching query, returning the removed
// keys. perr.NotFound is returned if nothing matched.
func (d *DB) Unregister(query string) ([]string, error) {
	var removed []string
	err := d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		for k, rec := range records {
			if matches(k, rec, query) {
				removed = append(removed, k)
				delete(records, k)
			}
		}
		if len(removed) == 0 {
			return nil, perr.NotFound.Newf("no installed record matches %q", query)
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

// Get returns the first record matching query (exact key, "name-*", or
// Name equality), or perr.NotFound.
func (d *DB) Get(query string) (porg.InstalledRecord, error) {
	var result porg.InstalledRecord
	var found bool
	err := d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if matches(k, records[k], query) {
				result = records[k]
				found = true
				break
			}
		}
		return nil, nil
	})
	if err != nil {
		return porg.InstalledRecord{}, err
	}
	if !found {
		return porg.InstalledRecord{}, perr.NotFound.Newf("no installed record matches %q", query)
	}
	return result, nil
}

// List returns every installed record, sorted by key.
func (d *DB) List() ([]porg.InstalledRecord, error) {
	var out []porg.InstalledRecord
	err := d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, records[k])
		}
		return nil, nil
	})
	return out, err
}

// IsInstalled reports whether any record matches name.
func (d *DB) IsInstalled(name string) (bool, error) {
	_, err := d.Get(name)
	if err != nil {
		if xerrors.Is(err, perr.NotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Backup copies the current database file to dest/installed.json.bak.<ts>
// and returns the written path.
func (d *DB) Backup(destDir string) (string, error) {
	if destDir == "" {
		destDir = filepath.Dir(d.path)
	}
	b, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			b = []byte("{}")
		} else {
			return "", xerrors.Errorf("reading db for backup: %w", err)
		}
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, "installed.json.bak."+time.Now().UTC().Format("20060102T150405Z"))
	if err := renameio.WriteFile(dest, b, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

// Restore replaces the database content with src's contents, validating
// that src parses as the expected record map first.
func (d *DB) Restore(src string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return perr.NotFound.Newf("backup %s", src)
		}
		return err
	}
	var records map[string]porg.InstalledRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return perr.ParseError.Newf("backup %s is not a valid database: %v", src, err)
	}
	return d.withLock(func(_ map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		return records, nil
	})
}

// Stats summarizes the database: package count and approximate on-disk
// byte total summed across every recorded prefix.
type Stats struct {
	PackageCount int
	TotalBytes   int64
}

func (d *DB) Stats() (Stats, error) {
	var stats Stats
	err := d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		stats.PackageCount = len(records)
		for _, rec := range records {
			stats.TotalBytes += dirSize(rec.Prefix)
		}
		return nil, nil
	})
	return stats, err
}

func dirSize(root string) int64 {
	var total int64
	filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best effort: skip unreadable entries
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// VerifyIssue describes one installed record failing Verify's sanity
// check.
type VerifyIssue struct {
	Key    string
	Reason string
}

// Verify checks, for each record, that its prefix exists and contains a
// bin or usr/bin subdirectory, returning a list of issues (empty if the
// database is internally consistent).
func (d *DB) Verify() ([]VerifyIssue, error) {
	var issues []VerifyIssue
	err := d.withLock(func(records map[string]porg.InstalledRecord) (map[string]porg.InstalledRecord, error) {
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rec := records[k]
			if _, err := os.Stat(rec.Prefix); err != nil {
				issues = append(issues, VerifyIssue{Key: k, Reason: "prefix does not exist: " + rec.Prefix})
				continue
			}
			hasBin := dirExists(filepath.Join(rec.Prefix, "bin")) || dirExists(filepath.Join(rec.Prefix, "usr", "bin"))
			if !hasBin {
				issues = append(issues, VerifyIssue{Key: k, Reason: "no bin or usr/bin under " + rec.Prefix})
			}
		}
		return nil, nil
	})
	return issues, err
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
