// Package document tracks the lifecycle of the uploaded source document:
// none, uploading, ready or failed.
package document

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFileType is returned when the selected file is not a PDF.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrUploadFailed classifies any transport failure during upload.
	ErrUploadFailed = errors.New("upload failed")
	// ErrBusy is returned when an upload is already in flight.
	ErrBusy = errors.New("upload already in flight")
)

// Document is the uploaded source. An empty ID means not ready.
type Document struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// Ready reports whether the server has issued an identifier.
func (d Document) Ready() bool { return d.ID != "" }

// Ticket identifies one accepted upload.
type Ticket struct {
	gen uint64
}

// Coordinator is not safe for concurrent use; the session serializes access.
type Coordinator struct {
	doc      Document
	inFlight bool
	gen      uint64
}

// Begin validates file and marks an upload as in flight. The previous
// document stops being ready immediately.
func (c *Coordinator) Begin(file FileHandle) (Ticket, error) {
	if file == nil || file.Type() != PDFType {
		typ := ""
		if file != nil {
			typ = file.Type()
		}
		return Ticket{}, fmt.Errorf("%w: %q", ErrInvalidFileType, typ)
	}
	if c.inFlight {
		return Ticket{}, ErrBusy
	}
	c.gen++
	c.inFlight = true
	c.doc = Document{Name: file.Name()}
	return Ticket{gen: c.gen}, nil
}

// Settle applies the transport result for t. It returns false and changes
// nothing when t is not the current upload.
func (c *Coordinator) Settle(t Ticket, id string, err error) bool {
	if t.gen == 0 || t.gen != c.gen || !c.inFlight {
		return false
	}
	c.inFlight = false
	if err != nil || id == "" {
		c.doc.ID = ""
		return true
	}
	c.doc.ID = id
	return true
}

func (c *Coordinator) Document() Document { return c.doc }
func (c *Coordinator) InFlight() bool { return c.inFlight }

// UploadEnabled is the derived state of the upload control.
func (c *Coordinator) UploadEnabled() bool { return !c.inFlight }
