package http

import (
	"errors"
	"mime/multipart"

	"profile-api/internal/storage"
)

// openUploads abre los archivos del form; close libera los que se abrieron.
func openUploads(files []*multipart.FileHeader) ([]storage.Upload, func(), error) {
	opened := make([]multipart.File, 0, len(files))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	uploads := make([]storage.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		uploads = append(uploads, storage.Upload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Body:     f,
		})
	}
	return uploads, closeAll, nil
}

func isUploadError(err error) bool {
	return errors.Is(err, storage.ErrEmptyFile) ||
		errors.Is(err, storage.ErrImageTooLarge) ||
		errors.Is(err, storage.ErrUnsupportedImage)
}
