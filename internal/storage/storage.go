// Package storage guarda las imagenes subidas por los usuarios (posts y avatares).
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ImageStore abstrae el backend de objetos (S3/MinIO o disco local).
type ImageStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrImageTooLarge    = errors.New("image too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// Upload es un archivo recibido, ya abierto por la capa HTTP.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type StoredImage struct {
	Key         string
	ContentType string
}

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

const sniffLen = 3072

// ImageUploader valida el contenido real del archivo antes de persistirlo.
type ImageUploader struct {
	store    ImageStore
	maxBytes int64
	now      func() time.Time
}

func NewImageUploader(store ImageStore, maxBytes int64) *ImageUploader {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &ImageUploader{
		store:    store,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Save sniffea el tipo, valida tamano y guarda el objeto bajo prefix/yyyy/mm/dd/<uuid><ext>.
func (u *ImageUploader) Save(ctx context.Context, prefix string, upload Upload) (StoredImage, error) {
	if upload.Body == nil || upload.Size == 0 {
		return StoredImage{}, ErrEmptyFile
	}
	if upload.Size > u.maxBytes {
		return StoredImage{}, ErrImageTooLarge
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(upload.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return StoredImage{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return StoredImage{}, ErrEmptyFile
	}

	mtype := mimetype.Detect(head)
	ext, ok := allowedImageTypes[mtype.String()]
	if !ok {
		return StoredImage{}, ErrUnsupportedImage
	}

	key := u.key(prefix, ext)
	body := io.MultiReader(bytes.NewReader(head), upload.Body)
	if err := u.store.Put(ctx, key, mtype.String(), body, upload.Size); err != nil {
		return StoredImage{}, fmt.Errorf("store image: %w", err)
	}
	return StoredImage{Key: key, ContentType: mtype.String()}, nil
}

func (u *ImageUploader) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return u.store.Delete(ctx, key)
}

func (u *ImageUploader) URL(key string) string {
	if key == "" {
		return ""
	}
	return u.store.URL(key)
}

func (u *ImageUploader) key(prefix, ext string) string {
	d := u.now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s%s", prefix, d.Year(), d.Month(), d.Day(), uuid.NewString(), ext)
}
