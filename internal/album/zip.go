package album

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
)

// File is one named payload inside an archive.
type File struct {
	Name string
	Data []byte
}

// deflateLevel trades a little compression for speed; results are photo
// JPEGs that barely compress anyway, so the zip is mostly a container.
const deflateLevel = flate.BestSpeed

// WriteZip streams a zip archive of the given files to w.
func WriteZip(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, deflateLevel)
	})

	for _, f := range files {
		entry, err := zw.Create(path.Base(f.Name))
		if err != nil {
			zw.Close()
			return fmt.Errorf("create zip entry %s: %w", f.Name, err)
		}
		if _, err := entry.Write(f.Data); err != nil {
			zw.Close()
			return fmt.Errorf("write zip entry %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize zip: %w", err)
	}
	return nil
}

// contentTypeFor maps a result filename to the content type stored with it.
func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
