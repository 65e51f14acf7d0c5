package relay

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// FileUpload holds a parsed file from a multipart form upload.
type FileUpload struct {
	Filename string
	Size     int64
	Header   *multipart.FileHeader
}

// Open returns a reader for the uploaded file contents.
func (f *FileUpload) Open() (io.ReadCloser, error) {
	if f.Header == nil {
		return nil, errors.New("no file header")
	}
	return f.Header.Open()
}

// UploadedFile returns the first file sent in the multipart field name. The
// form is parsed once, bounded by the route's body limit.
func (c *Context) UploadedFile(name string) (*FileUpload, error) {
	files, err := c.UploadedFiles(name)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, BadRequest(fmt.Sprintf("Missing file %q", name))
	}
	return files[0], nil
}

// UploadedFiles returns every file sent in the multipart field name.
func (c *Context) UploadedFiles(name string) ([]*FileUpload, error) {
	if err := c.parseMultipart(); err != nil {
		return nil, err
	}
	headers := c.req.MultipartForm.File[name]
	out := make([]*FileUpload, 0, len(headers))
	for _, h := range headers {
		out = append(out, &FileUpload{Filename: h.Filename, Size: h.Size, Header: h})
	}
	return out, nil
}

func (c *Context) parseMultipart() error {
	if c.req.MultipartForm != nil {
		return nil
	}
	limit := c.bodyLimit()
	if limit > 0 {
		c.req.Body = http.MaxBytesReader(c.w, c.req.Body, limit)
	}
	if err := c.req.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return tooLarge(limit)
		}
		return BadRequest("Couldn't parse multipart form: " + err.Error())
	}
	return nil
}
