package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// MultipartBody is a multipart/form-data upload: string fields plus file parts.
type MultipartBody struct {
	Fields map[string]string
	Files  []MultipartFile
}

type MultipartFile struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encode writes the body into memory and returns it with its content type (which carries the boundary).
func (m *MultipartBody) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := w.WriteField(name, m.Fields[name]); err != nil {
			return nil, "", errors.Wrapf(err, "write field %s", name)
		}
	}

	for _, f := range m.Files {
		if f.Field == "" || f.Content == nil {
			return nil, "", errors.New("multipart file needs a field name and content")
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", errors.Wrapf(err, "create part %s", f.Field)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, "", errors.Wrapf(err, "copy file %s", f.FileName)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return buf, w.FormDataContentType(), nil
}
