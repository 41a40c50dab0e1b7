package utils

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	MaxImageSize = 10 << 20 // 10 MB
	imageDir     = "posts"
)

var ErrInvalidImage = errors.New("upload a valid image")

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore keeps uploaded post images under Root and serves them under URL.
type ImageStore struct {
	Root string
	URL  string
}

func NewImageStore(root, url string) *ImageStore {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	return &ImageStore{Root: root, URL: url}
}

// Save stores the upload and returns its path relative to Root, e.g. "posts/x.gif".
// The content itself must be an image, whatever the file name claims.
func (s *ImageStore) Save(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > MaxImageSize {
		return "", fmt.Errorf("%w: file size exceeds maximum limit of %d MB", ErrInvalidImage, MaxImageSize/(1<<20))
	}

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	ext, ok := imageTypes[mtype.String()]
	if !ok {
		return "", fmt.Errorf("%w: unsupported type %s", ErrInvalidImage, mtype.String())
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind upload: %w", err)
	}

	dir := filepath.Join(s.Root, imageDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s%s",
		time.Now().Format("20060102"),
		uuid.New().String(),
		ext,
	)

	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return path.Join(imageDir, filename), nil
}

// Delete removes a stored image; a missing file is not an error.
func (s *ImageStore) Delete(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.Root, filepath.FromSlash(name)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// PublicURL is where a stored image is served from; empty for posts without one.
func (s *ImageStore) PublicURL(name string) string {
	if name == "" {
		return ""
	}
	return s.URL + name
}
