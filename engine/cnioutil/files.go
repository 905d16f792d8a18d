package cnioutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// CopyFile copies a regular file, creating the parent directories of dst
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, st.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s to %s", src, dst)
	}
	return out.Close()
}

// CopyDir copies the directory tree src into dst, merging with existing files.
// Paths (relative to src, slash separated) matched by excluded are skipped.
func CopyDir(src, dst string, excluded func(rel string) bool) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0755)
		}

		if excluded != nil && excluded(filepath.ToSlash(rel)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return CopyFile(path, target)
	})
}

// ExcludeMatcher returns a matcher for CopyDir. A pattern matches a path if it equals the path,
// is a directory prefix of it ("logs/" or "logs"), or matches it with filepath.Match.
func ExcludeMatcher(patterns []string) func(rel string) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(rel string) bool {
		for _, pat := range patterns {
			pat = strings.TrimSuffix(filepath.ToSlash(pat), "/")
			if pat == "" {
				continue
			}
			if rel == pat || strings.HasPrefix(rel, pat+"/") {
				return true
			}
			if ok, _ := filepath.Match(pat, rel); ok {
				return true
			}
		}
		return false
	}
}

// FileSHA256 returns the hex encoded SHA-256 digest of the file
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// IsExists checks if the file or directory exists
func IsExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
