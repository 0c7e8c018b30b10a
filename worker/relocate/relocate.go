package relocate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrOutsideRoot  = errors.New("destination escapes target root")
	ErrNotWritable  = errors.New("destination directory is not writable")
	ErrSizeMismatch = errors.New("copied file size does not match source")
)

const repairMode = 0o777

// Resolve maps a caller-supplied target path to a destination file under root.
// A target naming a media file is used literally; any other target is a
// directory that receives fetchedName.
func Resolve(root, target, fetchedName string, isMedia func(string) bool) (string, error) {
	var dest string
	if isMedia(target) {
		dest = filepath.Join(root, target)
	} else {
		dest = filepath.Join(root, target, filepath.Base(fetchedName))
	}

	rel, err := filepath.Rel(filepath.Clean(root), dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return dest, nil
}

// Relocator moves one job's artifact into place. It is not shared between
// jobs: the single permission repair it may attempt is spent by whichever of
// Prepare or Move needs it first.
type Relocator struct {
	logger   *zap.Logger
	repaired bool

	copy     func(ctx context.Context, src, dest string, info fs.FileInfo) error
	chmod    func(name string, mode fs.FileMode) error
	writable func(dir string) error
}

func New(logger *zap.Logger) *Relocator {
	return &Relocator{
		logger:   logger,
		copy:     copyFile,
		chmod:    os.Chmod,
		writable: probeWritable,
	}
}

// Prepare creates the destination's directory and makes sure it accepts writes.
func (r *Relocator) Prepare(dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create target directory %s: %w", dir, err)
	}

	err := r.writable(dir)
	if err == nil {
		return nil
	}

	r.logger.Warn("Target directory not writable",
		zap.String("dir", dir),
		zap.Error(err),
	)
	if !r.repair(dir) {
		return fmt.Errorf("%w: %s: %v", ErrNotWritable, dir, err)
	}
	if err := r.writable(dir); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotWritable, dir, err)
	}
	return nil
}

// Move copies src to dest preserving mode and modification time, verifies the
// copy's size and removes src. A size mismatch removes the partial copy and
// fails.
func (r *Relocator) Move(ctx context.Context, src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	err = r.copy(ctx, src, dest, info)
	if err != nil && errors.Is(err, fs.ErrPermission) && r.repair(filepath.Dir(dest)) {
		err = r.copy(ctx, src, dest, info)
	}
	if err != nil {
		return err
	}

	copied, err := os.Stat(dest)
	if err != nil {
		return fmt.Errorf("stat copy: %w", err)
	}
	if copied.Size() != info.Size() {
		r.logger.Warn("Copied file size mismatch",
			zap.String("dest", dest),
			zap.Int64("source_size", info.Size()),
			zap.Int64("copied_size", copied.Size()),
		)
		os.Remove(dest)
		return fmt.Errorf("%w: %d != %d", ErrSizeMismatch, copied.Size(), info.Size())
	}

	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

// repair attempts the one permission repair a Relocator is allowed.
func (r *Relocator) repair(dir string) bool {
	if r.repaired {
		return false
	}
	r.repaired = true

	r.logger.Info("Repairing target directory permissions", zap.String("dir", dir))
	if err := r.chmod(dir, repairMode); err != nil {
		r.logger.Warn("Permission repair failed",
			zap.String("dir", dir),
			zap.Error(err),
		)
		return false
	}
	return true
}

func probeWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func copyFile(ctx context.Context, src, dest string, info fs.FileInfo) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close destination: %w", cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod destination: %w", err)
	}
	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserve mtime: %w", err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
