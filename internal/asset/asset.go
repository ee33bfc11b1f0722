// Package asset copies packaged data blobs (the recognition encodings) to a stable
// local path the engine can open.
package asset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facemood/internal/types"
)

// Materializer copies named blobs out of a read-only source.
type Materializer struct {
	Source fs.FS
	Logger *slog.Logger
}

// New returns a Materializer reading from source.
func New(source fs.FS, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Materializer{Source: source, Logger: logger}
}

// Materialize makes sure the blob called name exists at dest.
// If dest already exists nothing is copied and copied is false.
func (m *Materializer) Materialize(name, dest string) (copied bool, err error) {
	if _, err := os.Stat(dest); err == nil {
		m.logger().Debug("Asset already materialized", "asset", name, "path", dest)
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("checking %s", dest), err)
	}

	if m.Source == nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("no asset source configured for %s", name), nil)
	}

	src, err := m.Source.Open(name)
	if err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("opening asset %s", name), err)
	}
	defer src.Close()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("creating %s", dir), err)
	}

	// Write next to dest and rename so a crash never leaves a truncated asset behind.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("creating temp file in %s", dir), err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, src)
	if err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("copying asset %s", name), err)
	}
	if err = tmp.Sync(); err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("syncing %s", tmpName), err)
	}
	if err = tmp.Close(); err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("closing %s", tmpName), err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return false, types.NewError(types.KindMissingFile, fmt.Sprintf("moving asset into %s", dest), err)
	}

	m.logger().Info("Asset materialized", "asset", name, "path", dest, "bytes", n)
	return true, nil
}

func (m *Materializer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
