package reconcile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RemoveUnit deletes the files directly inside dir together with any
// subdirectories that hold no unit of their own, then removes dir if it
// ended up empty. Subdirectories containing a file for which isUnitFile is
// true are separate units and are left untouched. When dir is root only its
// contents go. It returns the bytes removed.
func RemoveUnit(dir, root string, isUnitFile func(name string) bool) (int64, error) {
	var freed int64
	keep := root != "" && filepath.Clean(dir) == filepath.Clean(root)
	_, err := sweep(dir, isUnitFile, &freed, keep)
	return freed, err
}

// sweep reports whether dir was removed.
func sweep(dir string, isUnitFile func(string) bool, freed *int64, keep bool) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dir, err)
	}

	kept := 0
	for _, ent := range entries {
		p := filepath.Join(dir, ent.Name())
		if ent.IsDir() {
			own, err := holdsUnit(p, isUnitFile)
			if err != nil {
				return false, err
			}
			if own {
				kept++
				continue
			}
			removed, err := sweep(p, isUnitFile, freed, false)
			if err != nil {
				return false, err
			}
			if !removed {
				kept++
			}
			continue
		}

		var size int64
		if info, err := ent.Info(); err == nil && info.Mode().IsRegular() {
			size = info.Size()
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("remove %s: %w", p, err)
		}
		*freed += size
	}

	if kept > 0 || keep {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, fmt.Errorf("remove %s: %w", dir, err)
	}
	return true, nil
}

func holdsUnit(dir string, isUnitFile func(string) bool) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", dir, err)
	}
	for _, ent := range entries {
		if ent.Type().IsRegular() && isUnitFile(ent.Name()) {
			return true, nil
		}
	}
	return false, nil
}

// CleanupEmptyParents walks up from a removed unit directory and removes
// every ancestor below root that is left holding only system clutter
// (dotfiles, Thumbs.db, desktop.ini). It stops at the first ancestor with
// real content and never removes root. Returns the removed directories.
func CleanupEmptyParents(removed, root string) []string {
	root = filepath.Clean(root)
	var out []string
	for dir := filepath.Dir(filepath.Clean(removed)); isBelow(dir, root); dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			break
		}
		clutter := true
		for _, ent := range entries {
			if ent.IsDir() || !isClutter(ent.Name()) {
				clutter = false
				break
			}
		}
		if !clutter {
			break
		}
		for _, ent := range entries {
			os.Remove(filepath.Join(dir, ent.Name()))
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		out = append(out, dir)
	}
	return out
}

func isBelow(dir, root string) bool {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isClutter(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(name) {
	case "thumbs.db", "desktop.ini":
		return true
	}
	return false
}

// Relocate copies src into stagingDir under its base name, replacing any
// file already there. The copy goes through a temporary file so a failure
// never leaves a truncated destination. src stays in place.
func Relocate(src, stagingDir string) (int64, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	dst := filepath.Join(stagingDir, filepath.Base(src))
	tmp, err := os.CreateTemp(stagingDir, "."+filepath.Base(src)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, in)
	if err != nil {
		return 0, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return 0, fmt.Errorf("replace %s: %w", dst, err)
	}
	committed = true
	return n, nil
}
