// Package session composes the upload coordinator, the conversation store
// and the notification controller into the interaction state machine that
// decides which user actions are valid at any moment.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/conversation"
	"github.com/kalambet/docchat/internal/document"
	"github.com/kalambet/docchat/internal/notify"
)

// User-facing notification texts. Transport detail never reaches the user.
const (
	MsgUploaded        = "PDF Uploaded. You can now ask questions."
	MsgUploadFailed    = "Failed to upload PDF."
	MsgInvalidFileType = "Please upload a PDF file."
	MsgAskFailed       = "Failed to get answer."
)

// Transport performs the network calls. Each call is a single attempt.
type Transport interface {
	Upload(ctx context.Context, file document.FileHandle) (string, error)
	Ask(ctx context.Context, question, documentID string) (string, error)
}

// Observer is told about every state change. It must not call mutating
// Session methods from SessionChanged.
type Observer interface {
	SessionChanged(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) SessionChanged(s Snapshot) { f(s) }

type Options struct {
	NotifyDuration time.Duration
	Clock          notify.Clock
	Logger         *slog.Logger
}

// Session owns all interaction state. Every event is applied to completion
// under one lock; network calls run outside it and report back through
// generation tickets, so a late result for a superseded operation is
// dropped.
type Session struct {
	ctx       context.Context
	transport Transport
	logger    *slog.Logger
	notes     *notify.Controller

	mu    sync.Mutex
	docs  document.Coordinator
	conv  conversation.Store
	input string
	rev   uint64

	obsMu     sync.Mutex
	observers []Observer

	wg sync.WaitGroup
}

// New creates a session. ctx bounds every network call the session makes.
func New(ctx context.Context, t Transport, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		ctx:       ctx,
		transport: t,
		logger:    logger.With("session_id", uuid.New().String()),
		notes:     notify.NewController(opts.NotifyDuration, opts.Clock),
	}
	s.notes.OnChange(s.publish)
	return s
}

// Subscribe registers o for change notifications.
func (s *Session) Subscribe(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// SubmitUpload validates file and dispatches the upload. A non-PDF never
// reaches the transport. ErrBusy is returned without a notification when an
// upload is already running.
func (s *Session) SubmitUpload(file document.FileHandle) error {
	s.mu.Lock()
	tk, err := s.docs.Begin(file)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, document.ErrInvalidFileType) {
			s.logger.Info("file rejected", "error", err)
			s.notes.Notify(notify.KindError, MsgInvalidFileType)
		}
		return err
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("upload started", "file", file.Name())
	s.publish()

	go func() {
		defer s.wg.Done()
		id, err := s.transport.Upload(s.ctx, file)
		s.settleUpload(tk, id, err)
	}()
	return nil
}

func (s *Session) settleUpload(tk document.Ticket, id string, err error) {
	if err == nil && id == "" {
		err = errors.New("empty document id")
	}

	s.mu.Lock()
	applied := s.docs.Settle(tk, id, err)
	s.mu.Unlock()

	if !applied {
		s.logger.Warn("dropping stale upload result", "document_id", id)
		return
	}
	if err != nil {
		s.logger.Warn("upload failed", "error", fmt.Errorf("%w: %w", document.ErrUploadFailed, err))
		s.notes.Notify(notify.KindError, MsgUploadFailed)
		return
	}
	s.logger.Info("upload completed", "document_id", id)
	s.notes.Notify(notify.KindSuccess, MsgUploaded)
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
	s.publish()
}

// Send submits the current input buffer.
func (s *Session) Send() bool {
	s.mu.Lock()
	text := s.input
	s.mu.Unlock()
	return s.SubmitQuestion(text)
}

// SubmitQuestion appends text as a user message and asks the service. It
// silently returns false when text is blank, no document is ready, or an
// upload or answer is in flight.
func (s *Session) SubmitQuestion(text string) bool {
	s.mu.Lock()
	doc := s.docs.Document()
	if strings.TrimSpace(text) == "" || !doc.Ready() || s.docs.InFlight() || s.conv.Responding() {
		s.mu.Unlock()
		return false
	}
	tk, err := s.conv.Begin(text)
	if err != nil {
		s.mu.Unlock()
		return false
	}
	s.input = ""
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Debug("question submitted", "document_id", doc.ID)
	s.publish()

	go func() {
		defer s.wg.Done()
		answer, err := s.transport.Ask(s.ctx, text, doc.ID)
		s.settleAsk(tk, answer, err)
	}()
	return true
}

func (s *Session) settleAsk(tk conversation.Ticket, answer string, err error) {
	s.mu.Lock()
	applied := s.conv.Settle(tk, answer, err)
	s.mu.Unlock()

	if !applied {
		s.logger.Warn("dropping stale answer")
		return
	}
	if err != nil {
		s.logger.Warn("ask failed", "error", fmt.Errorf("%w: %w", conversation.ErrAskFailed, err))
		s.notes.Notify(notify.KindError, MsgAskFailed)
		return
	}
	s.logger.Debug("answer received", "bytes", len(answer))
	s.publish()
}

// DismissNotification removes the current notification.
func (s *Session) DismissNotification() {
	s.notes.Clear()
}

// Wait blocks until every dispatched network call has settled.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveStatus(s.docs.Document(), s.docs.InFlight(), s.conv.Responding())
}

func (s *Session) Controls() Controls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deriveControls(s.docs.Document(), s.docs.InFlight(), s.conv.Responding(), s.input)
}

// Snapshot returns the current state without advancing the revision.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	doc := s.docs.Document()
	uploading := s.docs.InFlight()
	responding := s.conv.Responding()

	snap := Snapshot{
		Revision:        s.rev,
		Document:        doc,
		Transcript:      s.conv.Messages(),
		UploadInFlight:  uploading,
		RespondInFlight: responding,
		Input:           s.input,
		Status:          deriveStatus(doc, uploading, responding),
		Controls:        deriveControls(doc, uploading, responding, s.input),
	}
	if n, ok := s.notes.Current(); ok {
		snap.Notification = &n
	}
	return snap
}

func (s *Session) publish() {
	s.mu.Lock()
	s.rev++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for _, o := range s.observers {
		o.SessionChanged(snap)
	}
}
