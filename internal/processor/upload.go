package processor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrUploadTooLarge is returned when an upload exceeds its byte limit.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// Materialize saves an upload stream under workDir so it can be analyzed as a
// local source. The analyzer owns and deletes the file afterwards. maxBytes
// <= 0 disables the limit.
func Materialize(workDir string, src io.Reader, maxBytes int64) (string, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	path := filepath.Join(workDir, uuid.NewString()+"-upload.mp4")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	reader := src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}
	n, copyErr := io.Copy(f, reader)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		err = fmt.Errorf("save upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("save upload: %w", closeErr)
	case maxBytes > 0 && n > maxBytes:
		err = ErrUploadTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}
