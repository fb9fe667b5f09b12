package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// PDFType is the only MIME type accepted for upload.
const PDFType = "application/pdf"

// FileHandle is a user-selected file.
type FileHandle interface {
	Name() string
	Type() string
	Open() (io.ReadCloser, error)
}

// LocalFile is a FileHandle backed by a file on disk. Its MIME type is
// sniffed from the content, not taken from the extension.
type LocalFile struct {
	path     string
	name     string
	mimeType string
	pages    int
}

// OpenLocal inspects the file at path and returns a handle for it.
func OpenLocal(path string) (*LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detecting type of %s: %w", path, err)
	}

	f := &LocalFile{
		path:     path,
		name:     filepath.Base(path),
		mimeType: mtype.String(),
	}
	if mtype.Is(PDFType) {
		f.mimeType = PDFType
		f.pages = countPages(path)
	}
	return f, nil
}

func (f *LocalFile) Name() string { return f.name }
func (f *LocalFile) Type() string { return f.mimeType }
func (f *LocalFile) Path() string { return f.path }

// Pages is the page count of a PDF, or 0 when it could not be read.
func (f *LocalFile) Pages() int { return f.pages }

func (f *LocalFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// countPages is best effort; a PDF the reader cannot parse is still
// uploadable.
func countPages(path string) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	fh, r, err := pdf.Open(path)
	if err != nil {
		return 0
	}
	defer fh.Close()
	return r.NumPage()
}

// MemFile is an in-memory FileHandle with a caller-declared MIME type.
type MemFile struct {
	FileName string
	MIMEType string
	Data     []byte
}

func (f MemFile) Name() string { return f.FileName }
func (f MemFile) Type() string { return f.MIMEType }

func (f MemFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.Data)), nil
}
