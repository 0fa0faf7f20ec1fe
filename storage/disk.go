// Package storage holds attachment blobs on the local filesystem.
package storage

import (
	"chat-relay/errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DiskStore saves attachments under random names inside one root directory
// and hands back a reference path for the message row. The extension comes
// from content sniffing, not from the client-supplied filename.
type DiskStore struct {
	root    string
	maxSize int64
	log     *slog.Logger
}

func NewDiskStore(root string, maxSize int64, log *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("attachment root: %w", err)
	}
	return &DiskStore{root: root, maxSize: maxSize, log: log}, nil
}

// Save reads the upload, enforces the size cap, sniffs the content type and
// writes the blob. The returned reference is the public path clients use to
// fetch the file.
func (s *DiskStore) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", errors.ErrInvalidArgument)
	}
	if int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: file exceeds %d bytes", errors.ErrInvalidArgument, s.maxSize)
	}

	detected := mimetype.Detect(data)
	name := uuid.NewString() + detected.Extension()

	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o640); err != nil {
		return "", err
	}
	s.log.Debug("Attachment stored", "name", name, "mime", detected.String(), "bytes", len(data))
	return "/files/" + name, nil
}

// Delete removes a previously stored blob. Unknown references answer false
// without error, mirroring the registry's idempotent unregister.
func (s *DiskStore) Delete(ref string) (bool, error) {
	name := filepath.Base(strings.TrimPrefix(ref, "/files/"))
	if name == "." || name == "/" {
		return false, fmt.Errorf("%w: bad reference", errors.ErrInvalidArgument)
	}

	err := os.Remove(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Root exposes the directory served at /files/.
func (s *DiskStore) Root() string {
	return s.root
}
