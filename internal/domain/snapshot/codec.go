package snapshot

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charlievieth/fastwalk"
	"github.com/klauspost/compress/flate"
	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/infrastructure/logging"
)

// Codec packs a live profile directory into a minimal zip snapshot and
// unpacks snapshots back into a profile the engine can resume from.
type Codec struct {
	manifest Manifest
	logger   *logging.Logger
}

// NewCodec creates a codec with the given manifest.
func NewCodec(manifest Manifest, logger *logging.Logger) *Codec {
	return &Codec{manifest: manifest, logger: logger}
}

// Archive writes a snapshot of dataDir to zipPath. Only manifest files are
// included; a critical file missing from the profile is skipped, not an
// error, and a profile with none of them yields an empty archive. The
// staging directory is removed on every path.
func (c *Codec) Archive(ctx context.Context, dataDir, zipPath string) error {
	staging, err := os.MkdirTemp(filepath.Dir(zipPath), "snapshot-staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	rules := c.manifest.Critical
	if tokenRule, ok := c.manifest.latestTokenRule(dataDir); ok {
		rules = append(rules, tokenRule)
	} else {
		c.logger.Warn("no token file found in profile", zap.String("data_dir", dataDir))
	}

	staged := 0
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(dataDir, filepath.FromSlash(rule.Src))
		dest := filepath.Join(staging, filepath.FromSlash(rule.Dest))
		if err := copyFile(src, dest); err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warn("skipping snapshot file", zap.String("src", rule.Src), zap.Error(err))
			}
			continue
		}
		staged++
	}
	if staged == 0 {
		// A profile that has not produced auth files yet still archives,
		// as an empty snapshot.
		c.logger.Warn("no snapshot files present in profile", zap.String("data_dir", dataDir))
	}

	return c.pack(ctx, staging, zipPath)
}

// pack zips the staging directory. Token database files are stored without
// recompression; everything else gets maximum deflate.
func (c *Codec) pack(ctx context.Context, staging, zipPath string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	writer := zip.NewWriter(out)
	writer.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, staging, func(path string, d os.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil || path == staging || d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}

		header := &zip.FileHeader{
			Name:   filepath.ToSlash(relPath),
			Method: zip.Deflate,
		}
		if c.manifest.TokenPattern.MatchString(path) {
			header.Method = zip.Store
		}

		w, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(w, file)
		return err
	})
	if err != nil {
		writer.Close()
		return fmt.Errorf("pack snapshot: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize snapshot: %w", err)
	}
	return out.Sync()
}

// Restore unpacks the snapshot at zipPath into dataDir and relocates token
// database files from the archive layout back to where the engine expects
// them. Individual unreadable entries are skipped. Safe to call on a
// snapshot that was already restored.
func (c *Codec) Restore(ctx context.Context, zipPath, dataDir string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer reader.Close()

	cleanRoot := filepath.Clean(dataDir)
	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		destPath := filepath.Join(dataDir, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(destPath, cleanRoot+string(os.PathSeparator)) {
			continue
		}

		if file.FileInfo().IsDir() {
			os.MkdirAll(destPath, 0o755)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			continue
		}

		src, err := file.Open()
		if err != nil {
			continue
		}
		dst, err := os.Create(destPath)
		if err != nil {
			src.Close()
			continue
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			c.logger.Warn("partial snapshot entry", zap.String("entry", file.Name), zap.Error(err))
		}
	}

	return c.relocateTokenFiles(dataDir)
}

// relocateTokenFiles copies archived token database files back into the
// engine's live directory. The archive copy is left in place so a restore
// of the same directory stays idempotent.
func (c *Codec) relocateTokenFiles(dataDir string) error {
	liveDir := filepath.Join(dataDir, filepath.FromSlash(c.manifest.TokenDir))
	if err := os.MkdirAll(liveDir, 0o755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	archivedDir := filepath.Join(dataDir, filepath.FromSlash(c.manifest.TokenDestDir))
	entries, err := os.ReadDir(archivedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read archived token dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(archivedDir, entry.Name())
		dest := filepath.Join(liveDir, entry.Name())
		if err := copyFile(src, dest); err != nil {
			c.logger.Warn("token file relocation failed", zap.String("file", entry.Name()), zap.Error(err))
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
