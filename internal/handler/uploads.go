package handler

import (
	"errors"
	"fmt"
	"net/http"

	"videotube-server/internal/media"
	"videotube-server/internal/service"
)

type UploadOptions struct {
	TempDir string
	MaxSize int64
}

const multipartMemory = 8 << 20

// parseMultipart caps the body at two images plus form overhead.
func (o UploadOptions) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, 2*o.MaxSize+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return service.NewValidationError("request must be a multipart form within the upload size limit")
	}
	return nil
}

// stage copies the named form file to the temp dir. A missing file yields an
// empty path and no error.
func (o UploadOptions) stage(r *http.Request, field string) (string, error) {
	_, fh, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", service.NewValidationError(fmt.Sprintf("%s could not be read", field))
	}

	if o.MaxSize > 0 && fh.Size > o.MaxSize {
		return "", service.NewValidationError(fmt.Sprintf("%s exceeds %d bytes", field, o.MaxSize))
	}

	return media.SaveTemp(o.TempDir, fh)
}
