package session

import (
	"strings"

	"github.com/kalambet/docchat/internal/conversation"
	"github.com/kalambet/docchat/internal/document"
	"github.com/kalambet/docchat/internal/notify"
)

// Status is derived from the document and the two in-flight flags; it is
// never stored.
type Status string

const (
	StatusNoDocument Status = "no_document"
	StatusUploading  Status = "uploading"
	StatusReady      Status = "ready"
	StatusResponding Status = "responding"
)

// Controls is the enabled state of each UI control.
type Controls struct {
	UploadEnabled bool `json:"upload_enabled"`
	UploadBusy    bool `json:"upload_busy"`
	InputEnabled  bool `json:"input_enabled"`
	SendEnabled   bool `json:"send_enabled"`
}

// Snapshot is a point-in-time copy of the whole session.
type Snapshot struct {
	Revision        uint64                 `json:"revision"`
	Document        document.Document      `json:"document"`
	Transcript      []conversation.Message `json:"transcript"`
	UploadInFlight  bool                   `json:"upload_in_flight"`
	RespondInFlight bool                   `json:"respond_in_flight"`
	Notification    *notify.Notification   `json:"notification,omitempty"`
	Input           string                 `json:"input"`
	Status          Status                 `json:"status"`
	Controls        Controls               `json:"controls"`
}

// Entries returns the transcript plus the thinking indicator while a
// response is pending.
func (s Snapshot) Entries() []conversation.Entry {
	out := make([]conversation.Entry, 0, len(s.Transcript)+1)
	for _, m := range s.Transcript {
		out = append(out, conversation.Entry{Message: m})
	}
	if s.RespondInFlight {
		out = append(out, conversation.Entry{
			Message:  conversation.Message{Role: conversation.RoleAssistant, Content: conversation.ThinkingText},
			Thinking: true,
		})
	}
	return out
}

func deriveStatus(doc document.Document, uploading, responding bool) Status {
	switch {
	case uploading:
		return StatusUploading
	case responding:
		return StatusResponding
	case doc.Ready():
		return StatusReady
	default:
		return StatusNoDocument
	}
}

// Uploads and asks are independent channels: a new upload may start while
// an answer is pending. Only a second upload is blocked.
func deriveControls(doc document.Document, uploading, responding bool, input string) Controls {
	inputEnabled := doc.Ready() && !uploading && !responding
	return Controls{
		UploadEnabled: !uploading,
		UploadBusy:    uploading,
		InputEnabled:  inputEnabled,
		SendEnabled:   inputEnabled && strings.TrimSpace(input) != "",
	}
}
