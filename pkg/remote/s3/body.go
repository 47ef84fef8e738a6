package s3

import (
	"bytes"
	"io"
	"mime"
	"path"
)

func newBody(data []byte) io.Reader {
	return bytes.NewReader(data)
}

// readAll reads body, preallocating when the size is known.
func readAll(body io.Reader, size int64) ([]byte, error) {
	if size <= 0 {
		return io.ReadAll(body)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(buf, body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func contentType(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}
