package security

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ValidatePathWithinDirectory checks if a file path is within a safe directory.
// It prevents path traversal attacks by ensuring the resolved path doesn't escape
// the specified safe directory. This includes protection against symlink-based attacks.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	_, err := canonicalWithin(filePath, safeDir)
	return err
}

// ResolveWithin joins rel onto root and returns the cleaned path, or an error
// if the result (after resolving symlinks) would leave root. Absolute rel
// values are rejected outright.
func ResolveWithin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("absolute path not allowed: %s", rel)
	}
	joined := filepath.Join(root, filepath.FromSlash(rel))
	if _, err := canonicalWithin(joined, root); err != nil {
		return "", err
	}
	return joined, nil
}

func canonicalWithin(filePath, safeDir string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	// EvalSymlinks fails for paths that don't exist yet; in that case resolve
	// the nearest existing parent so /root/evil-link/newfile is still caught.
	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		checkPath := absPath
		for {
			parentDir := filepath.Dir(checkPath)
			if parentDir == checkPath {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
				relToParent, _ := filepath.Rel(parentDir, absPath)
				canonicalPath = filepath.Join(resolved, relToParent)
				break
			}
			checkPath = parentDir
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return "", fmt.Errorf("path is outside safe directory: %w", err)
	}

	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}

	return canonicalPath, nil
}

// SecureFilename reduces an uploaded filename to a flat ASCII name that is
// safe to store on disk. Unicode is folded with NFKD and non-ASCII runes are
// dropped, path separators and whitespace runs become a single underscore,
// anything outside [A-Za-z0-9_.-] is removed and leading/trailing dots and
// underscores are trimmed. The result may be empty.
func SecureFilename(name string) string {
	folded := norm.NFKD.String(name)

	var ascii strings.Builder
	for _, r := range folded {
		if r > unicode.MaxASCII {
			continue
		}
		if r == '/' || r == '\\' {
			r = ' '
		}
		ascii.WriteRune(r)
	}

	joined := strings.Join(strings.Fields(ascii.String()), "_")

	var b strings.Builder
	for _, r := range joined {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}

	return strings.Trim(b.String(), "._")
}
