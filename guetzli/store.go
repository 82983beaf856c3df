package guetzli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hazyhaar/guetzli/idgen"
)

const (
	metaFileName       = "meta"
	targetFileName     = "target.jpg"
	processorLogName   = ".guetzli-processor.log"
	sourceFilePrefix   = "source"
)

// Store is the on-disk layout of content entries: atomic-enough read/write
// of source, target and metadata files, and recursive deletion. Modeled on
// the directory-per-record layout and best-effort delete walk used by the
// teacher's ingester store, adapted from a database-backed piece store to a
// purely filesystem-backed one.
type Store struct {
	base string

	logOnce sync.Once
}

// NewStore returns a Store rooted at base. The directory is created lazily,
// on first access, matching §4.1's "created on first access if missing".
func NewStore(base string) *Store {
	return &Store{base: base}
}

func (s *Store) ensureBase() error {
	var err error
	s.logOnce.Do(func() {
		slog.Info("guetzli store base directory", "path", s.base)
	})
	if err = os.MkdirAll(s.base, 0o755); err != nil {
		return fmt.Errorf("guetzli: create base directory %s: %w", s.base, err)
	}
	return nil
}

func (s *Store) entryDir(contentID string) string {
	return filepath.Join(s.base, contentID)
}

func (s *Store) sourcePath(contentID string, t SourceType) string {
	return filepath.Join(s.entryDir(contentID), sourceFilePrefix+"."+t.Ext())
}

func (s *Store) targetPath(contentID string) string {
	return filepath.Join(s.entryDir(contentID), targetFileName)
}

func (s *Store) metaPath(contentID string) string {
	return filepath.Join(s.entryDir(contentID), metaFileName)
}

// Admit generates a fresh content id, creates its directory and writes
// sourceBytes into source.<ext>. It does not write metadata; the caller
// completes admission with WriteMeta.
func (s *Store) Admit(sourceBytes io.Reader, sourceType SourceType) (string, error) {
	if err := s.ensureBase(); err != nil {
		return "", err
	}
	contentID := idgen.ContentID()

	dir := s.entryDir(contentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("guetzli: create entry directory %s: %w", contentID, err)
	}

	path := s.sourcePath(contentID, sourceType)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("guetzli: create source file for %s: %w", contentID, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, sourceBytes); err != nil {
		return "", fmt.Errorf("guetzli: write source for %s: %w", contentID, err)
	}

	return contentID, nil
}

// ReadSource opens the source file for contentID. The caller must close it.
func (s *Store) ReadSource(contentID string, t SourceType) (io.ReadCloser, error) {
	f, err := os.Open(s.sourcePath(contentID, t))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("guetzli: open source for %s: %w", contentID, err)
	}
	return f, nil
}

// ReadTarget opens the target file for contentID. The caller must close it.
func (s *Store) ReadTarget(contentID string) (io.ReadCloser, error) {
	f, err := os.Open(s.targetPath(contentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("guetzli: open target for %s: %w", contentID, err)
	}
	return f, nil
}

// WriteTarget writes targetBytes to target.jpg for contentID, overwriting
// any existing target.
func (s *Store) WriteTarget(contentID string, targetBytes io.Reader) (int64, error) {
	f, err := os.Create(s.targetPath(contentID))
	if err != nil {
		return 0, fmt.Errorf("guetzli: create target for %s: %w", contentID, err)
	}
	defer f.Close()

	n, err := io.Copy(f, targetBytes)
	if err != nil {
		return 0, fmt.Errorf("guetzli: write target for %s: %w", contentID, err)
	}
	return n, nil
}

// SourcePath returns the absolute path to the source file, for components
// (Probe, Transformer) that must invoke external processes against a path
// rather than a stream.
func (s *Store) SourcePath(contentID string, t SourceType) string {
	return s.sourcePath(contentID, t)
}

// TargetPath returns the absolute path to the target file.
func (s *Store) TargetPath(contentID string) string {
	return s.targetPath(contentID)
}

// ProcessorLogPath returns the path to the best-effort recompressor log
// file, kept alongside the source in the entry's directory.
func (s *Store) ProcessorLogPath(contentID string) string {
	return filepath.Join(s.entryDir(contentID), processorLogName)
}

// ReadMeta parses the meta file for contentID.
func (s *Store) ReadMeta(contentID string) (*Metadata, error) {
	data, err := os.ReadFile(s.metaPath(contentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("guetzli: read meta for %s: %w", contentID, err)
	}
	m, err := MetaCodec{}.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("guetzli: parse meta for %s: %w", contentID, err)
	}
	return m, nil
}

// WriteMeta serializes m and rewrites the meta file for its content id.
// It may truncate and rewrite; atomicity beyond a single-file replace is
// not required.
func (s *Store) WriteMeta(m *Metadata) error {
	dir := s.entryDir(m.ContentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("guetzli: create entry directory %s: %w", m.ContentID, err)
	}
	data := MetaCodec{}.Serialize(m)
	if err := os.WriteFile(s.metaPath(m.ContentID), data, 0o644); err != nil {
		return fmt.Errorf("guetzli: write meta for %s: %w", m.ContentID, err)
	}
	return nil
}

// ListContentIDs enumerates immediate subdirectories of the base directory.
// Order is unspecified.
func (s *Store) ListContentIDs() ([]string, error) {
	if err := s.ensureBase(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.base)
	if err != nil {
		return nil, fmt.Errorf("guetzli: list base directory: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// fileSize stats path and returns its byte length.
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the content id's directory tree recursively. Individual
// file failures are swallowed and the walk continues; a no-op if the
// directory is already absent.
func (s *Store) Delete(contentID string) error {
	dir := s.entryDir(contentID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("guetzli store: delete incomplete", "content_id", contentID, "error", err)
	}
	return nil
}
