package build

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bitswalk/shipyard/src/common/errors"
	"github.com/bitswalk/shipyard/src/shipyardd/storage"
	"github.com/google/uuid"
)

const (
	DefaultMaxExtractBytes   int64 = 1 << 30
	DefaultMaxExtractEntries       = 50000
)

// ExtractLimits bounds what a single archive may unpack to
type ExtractLimits struct {
	MaxBytes   int64
	MaxEntries int
}

// Intake accepts uploaded archives and stores them as artifacts
type Intake struct {
	storage storage.Backend
	now     func() time.Time
}

// NewIntake creates an intake writing to the given backend
func NewIntake(backend storage.Backend) *Intake {
	return &Intake{storage: backend, now: time.Now}
}

// ValidateFilename rejects anything that is not a .zip upload
func ValidateFilename(filename string) error {
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".zip") {
		return errors.ErrInvalidArchive
	}
	return nil
}

// ArchiveFilename returns version_<UTC timestamp>_<uuid>.zip
func ArchiveFilename(t time.Time) string {
	return fmt.Sprintf("version_%s_%s.zip", t.UTC().Format("20060102_150405"), uuid.New().String())
}

// Store validates filename and uploads the archive, returning its storage key
func (in *Intake) Store(ctx context.Context, projectID, filename string, r io.Reader, size int64) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	if in.storage == nil {
		return "", errors.ErrStorageUnavailable
	}

	key := storage.ArchiveKey(projectID, ArchiveFilename(in.now()))
	if err := in.storage.Upload(ctx, key, r, size, "application/zip"); err != nil {
		return "", errors.ErrStorageWrite.WithCause(err)
	}

	log.Debug("Stored submission archive", "project_id", projectID, "key", key, "size", size)
	return key, nil
}

// Fetch copies a stored archive to a local file for extraction
func (in *Intake) Fetch(ctx context.Context, key, localPath string) error {
	if in.storage == nil {
		return errors.ErrStorageUnavailable
	}

	reader, _, err := in.storage.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get archive from storage: %w", err)
	}
	defer reader.Close()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	return nil
}

// Extract unpacks the zip at archivePath into destDir. Any unreadable archive, an
// entry escaping destDir or a breached limit yields ErrCorruptArchive. Symlink
// entries are skipped.
func Extract(ctx context.Context, archivePath, destDir string, limits ExtractLimits) error {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = DefaultMaxExtractBytes
	}
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = DefaultMaxExtractEntries
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.ErrCorruptArchive.WithCause(err)
	}
	defer zr.Close()

	if len(zr.File) > limits.MaxEntries {
		return errors.ErrCorruptArchive.WithCause(
			fmt.Errorf("archive has %d entries, limit is %d", len(zr.File), limits.MaxEntries))
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	base := filepath.Clean(destDir)

	var written int64
	for _, f := range zr.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		target := filepath.Join(base, f.Name)
		if target != base && !strings.HasPrefix(target, base+string(os.PathSeparator)) {
			return errors.ErrCorruptArchive.WithCause(fmt.Errorf("invalid zip path: %s", f.Name))
		}

		mode := f.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			log.Debug("Skipping symlink entry", "name", f.Name)
			continue

		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}

		n, err := extractFile(f, target, limits.MaxBytes-written)
		written += n
		if err != nil {
			return err
		}
	}

	return nil
}

func extractFile(f *zip.File, target string, remaining int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, errors.ErrCorruptArchive.WithCause(err)
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0200)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	// Read one byte past the budget to detect an overrun.
	n, err := io.Copy(out, io.LimitReader(rc, remaining+1))
	if err != nil {
		return n, errors.ErrCorruptArchive.WithCause(err)
	}
	if n > remaining {
		return n, errors.ErrCorruptArchive.WithCause(fmt.Errorf("archive expands beyond the extraction limit"))
	}

	return n, nil
}
