// Package artifact lays out per-request files on disk and serves them back.
//
// Every request owns a workspace directory results/<id>. Raw uploads live
// beside the workspaces in uploads/<id>_<name> so a result directory can be
// published without exposing the original submission.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/banshee-data/phylo.report/internal/fsutil"
	"github.com/banshee-data/phylo.report/internal/security"
)

// Role names the kind of file an artifact is.
type Role string

const (
	RawSequences     Role = "raw-sequences"
	AlignedSequences Role = "aligned-sequences"
	TreeText         Role = "tree-text"
	TreeJSON         Role = "tree-json"
	TreeRendering    Role = "tree-rendering"
)

// defaultUploadName is used when an uploaded filename sanitises to nothing.
const defaultUploadName = "sequences.fasta"

var canonicalNames = map[Role]string{
	AlignedSequences: "aligned.fasta",
	TreeText:         "tree.nwk",
	TreeJSON:         "tree.json",
	TreeRendering:    "tree.svg",
}

var idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

var (
	// ErrNotFound is returned by Read for missing files and for paths that
	// fall outside the results root.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidID is returned when a request id is not 32 lowercase hex chars.
	ErrInvalidID = errors.New("invalid request id")
	// ErrUnknownRole is returned for roles without a canonical file.
	ErrUnknownRole = errors.New("unknown artifact role")
)

// ValidID reports whether id has the request id shape.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Store owns the uploads and results directories.
type Store struct {
	uploadsDir string
	resultsDir string
	fs         fsutil.FileSystem
}

// NewStore creates both roots if needed. A nil fs selects the OS filesystem.
func NewStore(uploadsDir, resultsDir string, fsys fsutil.FileSystem) (*Store, error) {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	for _, dir := range []string{uploadsDir, resultsDir} {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{uploadsDir: uploadsDir, resultsDir: resultsDir, fs: fsys}, nil
}

// ResultsDir returns the results root.
func (s *Store) ResultsDir() string { return s.resultsDir }

// UploadsDir returns the uploads root.
func (s *Store) UploadsDir() string { return s.uploadsDir }

// WorkspaceFor returns results/<id>, creating it if necessary.
func (s *Store) WorkspaceFor(id string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	dir := filepath.Join(s.resultsDir, id)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

// CanonicalPath returns where the artifact of role lives for request id.
// Raw sequences have no canonical path; use UploadPath.
func (s *Store) CanonicalPath(id string, role Role) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	name, ok := canonicalNames[role]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	return filepath.Join(s.resultsDir, id, name), nil
}

// UploadPath returns uploads/<id>_<name>, where name is the sanitised
// client filename.
func (s *Store) UploadPath(id, filename string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	name := security.SecureFilename(filename)
	if name == "" {
		name = defaultUploadName
	}
	return filepath.Join(s.uploadsDir, id+"_"+name), nil
}

// SaveUpload streams r to the upload path for id and returns that path.
func (s *Store) SaveUpload(id, filename string, r io.Reader) (string, error) {
	path, err := s.UploadPath(id, filename)
	if err != nil {
		return "", err
	}
	f, err := s.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(path)
		return "", fmt.Errorf("close upload: %w", err)
	}
	return path, nil
}

// WriteAtomic writes data to path through a temporary sibling and a rename,
// so readers never observe a partial file.
func (s *Store) WriteAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := s.fs.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("commit %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Exists reports whether path exists.
func (s *Store) Exists(path string) bool {
	return s.fs.Exists(path)
}

// Contains reports whether path resolves, through any symlinks, to a location
// inside the uploads or results root.
func (s *Store) Contains(path string) bool {
	return security.ValidatePathWithinDirectory(path, s.uploadsDir) == nil ||
		security.ValidatePathWithinDirectory(path, s.resultsDir) == nil
}

// ReadFile reads a path the caller already trusts.
func (s *Store) ReadFile(path string) ([]byte, error) {
	return s.fs.ReadFile(path)
}

// Read returns the file at rel inside the results root. Paths that escape
// the root, including through symlinks, are reported as ErrNotFound.
func (s *Store) Read(rel string) ([]byte, error) {
	path, err := security.ResolveWithin(s.resultsDir, rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	data, err := s.fs.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return data, err
}
