// Package chartwriter commits rendered manifests into a chart directory so
// that readers never see requirements.yaml and values.yaml out of step.
package chartwriter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

const (
	dirPerm     = 0o755
	filePerm    = 0o644
	tempPattern = ".vong-*.tmp"

	// staleTempAge is how old a temporary must be before another commit
	// treats it as abandoned. Younger ones may belong to a concurrent run.
	staleTempAge = 10 * time.Minute
)

// Adapter implements ports.WriterPort on the local filesystem.
type Adapter struct {
	logger *slog.Logger
	rename func(oldpath, newpath string) error
}

// New creates a filesystem chart writer.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Adapter{logger: logger, rename: os.Rename}
}

// Read returns the committed manifest pair in dir. Missing files read as empty.
func (a *Adapter) Read(_ context.Context, dir string) (domain.ManifestPair, error) {
	req, err := readOptional(filepath.Join(dir, domain.RequirementsFile))
	if err != nil {
		return domain.ManifestPair{}, err
	}
	vals, err := readOptional(filepath.Join(dir, domain.ValuesFile))
	if err != nil {
		return domain.ManifestPair{}, err
	}
	return domain.ManifestPair{Requirements: req, Values: vals}, nil
}

// Commit writes both manifests to temporary files in dir and renames them
// into place. On any failure the previously committed pair is left as it was.
// chartScaffold is written to Chart.yaml only if that file does not exist,
// and is removed again when the pair cannot be committed.
func (a *Adapter) Commit(ctx context.Context, dir string, pair domain.ManifestPair, chartScaffold []byte) (err error) {
	if err := ctx.Err(); err != nil {
		return domain.NewWriteFailureError("commit", dir, err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return domain.NewWriteFailureError("create directory", dir, err)
	}
	a.removeStaleTemps(dir)

	chartPath := filepath.Join(dir, domain.ChartFile)
	created, err := a.ensureChart(chartPath, chartScaffold)
	if err != nil {
		return err
	}
	defer func() {
		if !created {
			return
		}
		if err != nil {
			if rerr := os.Remove(chartPath); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				a.logger.Warn("failed to remove chart scaffold", "path", chartPath, "error", rerr)
			}
			return
		}
		a.logger.Info("created chart scaffold", "path", chartPath)
	}()

	reqPath := filepath.Join(dir, domain.RequirementsFile)
	valPath := filepath.Join(dir, domain.ValuesFile)

	prevReq, reqExisted, err := readExisting(reqPath)
	if err != nil {
		return err
	}

	tmpReq, err := writeTemp(dir, pair.Requirements)
	if err != nil {
		return err
	}
	tmpVal, err := writeTemp(dir, pair.Values)
	if err != nil {
		_ = os.Remove(tmpReq)
		return err
	}

	if err := a.rename(tmpReq, reqPath); err != nil {
		_ = os.Remove(tmpReq)
		_ = os.Remove(tmpVal)
		return domain.NewWriteFailureError("rename", reqPath, err)
	}

	if err := a.rename(tmpVal, valPath); err != nil {
		_ = os.Remove(tmpVal)
		if rerr := a.restore(dir, reqPath, prevReq, reqExisted); rerr != nil {
			a.logger.Error("failed to restore previous manifest", "path", reqPath, "error", rerr)
			return domain.NewWriteFailureError("rename", valPath, errors.Join(err, rerr))
		}
		return domain.NewWriteFailureError("rename", valPath, err)
	}

	return nil
}

// ensureChart writes the Chart.yaml scaffold at path when the chart has
// none, and reports whether it did.
func (a *Adapter) ensureChart(path string, scaffold []byte) (bool, error) {
	if len(scaffold) == 0 {
		return false, nil
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, domain.NewWriteFailureError("stat", path, err)
	}

	tmp, err := writeTemp(filepath.Dir(path), scaffold)
	if err != nil {
		return false, err
	}
	if err := a.rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return false, domain.NewWriteFailureError("rename", path, err)
	}
	return true, nil
}

// restore puts back the requirements file that was replaced before the
// values rename failed.
func (a *Adapter) restore(dir, path string, prev []byte, existed bool) error {
	if !existed {
		return os.Remove(path)
	}
	tmp, err := writeTemp(dir, prev)
	if err != nil {
		return err
	}
	if err := a.rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// removeStaleTemps deletes temporaries left behind by an interrupted commit.
// Temporaries younger than staleTempAge are left alone.
func (a *Adapter) removeStaleTemps(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, tempPattern))
	if err != nil {
		return
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || time.Since(info.ModTime()) < staleTempAge {
			continue
		}
		if err := os.Remove(m); err != nil {
			a.logger.Warn("failed to remove stale temporary file", "path", m, "error", err)
			continue
		}
		a.logger.Debug("removed stale temporary file", "path", m)
	}
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", domain.NewWriteFailureError("create temp file", dir, err)
	}
	path := f.Name()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", domain.NewWriteFailureError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", domain.NewWriteFailureError("sync", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", domain.NewWriteFailureError("close", path, err)
	}
	if err := os.Chmod(path, filePerm); err != nil {
		_ = os.Remove(path)
		return "", domain.NewWriteFailureError("chmod", path, err)
	}
	return path, nil
}

func readExisting(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.NewWriteFailureError("read", path, err)
	}
	return b, true, nil
}

func readOptional(path string) ([]byte, error) {
	b, _, err := readExisting(path)
	if err != nil {
		return nil, fmt.Errorf("reading committed manifest: %w", err)
	}
	return b, nil
}
