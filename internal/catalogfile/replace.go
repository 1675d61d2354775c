package catalogfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"

	"softdex/internal/catalog"
)

// BackupSuffix is appended to the catalog path while a replacement is in
// progress and after it succeeds.
const BackupSuffix = ".bak"

// SQLite sidecar files travel with the database they belong to.
var sidecars = []string{"", "-wal", "-shm"}

// Replace swaps the catalog at current for a copy of replacement. The
// previous catalog and its WAL sidecars are kept under current+".bak". When
// the copy fails or the new file does not open as a catalog, the backup is
// moved back and the error is returned. The catalog must not be open while
// it is replaced.
func Replace(ctx context.Context, current, replacement string) (err error) {
	if _, err := os.Stat(replacement); err != nil {
		return fmt.Errorf("stat replacement catalog: %w", err)
	}
	backup := current + BackupSuffix

	hadCurrent, err := moveAside(current, backup)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		removeSet(current)
		if hadCurrent {
			if _, restoreErr := moveAside(backup, current); restoreErr != nil {
				err = errors.Join(err, fmt.Errorf("restore catalog backup: %w", restoreErr))
			}
		}
	}()

	if err := copyFileVerified(replacement, current); err != nil {
		return fmt.Errorf("copy replacement catalog: %w", err)
	}
	if err := Verify(ctx, current); err != nil {
		return err
	}
	return nil
}

// Verify opens path as a catalog and reads its entry count.
func Verify(ctx context.Context, path string) error {
	store, err := catalog.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open replacement catalog: %w", err)
	}
	defer store.Close()
	if _, err := store.Count(ctx); err != nil {
		return fmt.Errorf("read replacement catalog: %w", err)
	}
	return nil
}

// moveAside renames src and its sidecars onto dst, clearing any stale dst
// set first. It reports whether src existed.
func moveAside(src, dst string) (bool, error) {
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat catalog: %w", err)
	}
	removeSet(dst)
	for _, suffix := range sidecars {
		if err := os.Rename(src+suffix, dst+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return true, fmt.Errorf("move %s: %w", src+suffix, err)
		}
	}
	return true, nil
}

func removeSet(path string) {
	for _, suffix := range sidecars {
		_ = os.Remove(path + suffix)
	}
}

// copyFileVerified streams src to dst with SHA256 and size verification and
// removes dst on mismatch.
func copyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
