package pipeline

import (
	"path/filepath"

	"github.com/google/uuid"
)

// Cache file names, reused by every capture. A new session overwrites the last one.
const (
	CapturedImageName  = "photo.jpg"
	CorrectedImageName = "temp_image.jpg"
	ResizedImageName   = "temp_image_resized.jpg"
)

// Session holds the file paths of one capture while it moves through the pipeline.
// Sessions share cache paths, so only one may run at a time.
type Session struct {
	ID                 string
	RawImagePath       string
	CorrectedImagePath string
	ResizedImagePath   string
	AssetPath          string
}

// NewSession lays out a session for the capture at raw.
func NewSession(raw, cacheDir, filesDir, assetName string) Session {
	return Session{
		ID:                 uuid.NewString(),
		RawImagePath:       raw,
		CorrectedImagePath: filepath.Join(cacheDir, CorrectedImageName),
		ResizedImagePath:   filepath.Join(cacheDir, ResizedImageName),
		AssetPath:          filepath.Join(filesDir, assetName),
	}
}

// CapturePath is where a capture source should drop the raw photo.
func CapturePath(cacheDir string) string {
	return filepath.Join(cacheDir, CapturedImageName)
}
