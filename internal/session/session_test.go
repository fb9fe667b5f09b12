package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/docchat/internal/conversation"
	"github.com/kalambet/docchat/internal/document"
	"github.com/kalambet/docchat/internal/notify"
	"github.com/kalambet/docchat/internal/notify/notifytest"
)

type reply struct {
	value string
	err   error
}

type call struct {
	kind       string
	fileName   string
	question   string
	documentID string
	reply      chan reply
}

// fakeTransport parks every call until the test replies to it.
type fakeTransport struct {
	calls chan *call
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan *call, 16)}
}

func (f *fakeTransport) Upload(ctx context.Context, file document.FileHandle) (string, error) {
	c := &call{kind: "upload", fileName: file.Name(), reply: make(chan reply, 1)}
	f.calls <- c
	r := <-c.reply
	return r.value, r.err
}

func (f *fakeTransport) Ask(ctx context.Context, question, documentID string) (string, error) {
	c := &call{kind: "ask", question: question, documentID: documentID, reply: make(chan reply, 1)}
	f.calls <- c
	r := <-c.reply
	return r.value, r.err
}

func nextCall(t *testing.T, ft *fakeTransport, kind string) *call {
	t.Helper()
	select {
	case c := <-ft.calls:
		if c.kind != kind {
			t.Fatalf("transport call = %s, want %s", c.kind, kind)
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s call reached the transport", kind)
		return nil
	}
}

func newTestSession(t *testing.T) (*Session, *fakeTransport, *notifytest.Clock) {
	t.Helper()
	ft := newFakeTransport()
	clock := &notifytest.Clock{}
	s := New(context.Background(), ft, Options{
		NotifyDuration: 3 * time.Second,
		Clock:          clock,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s, ft, clock
}

func pdf(name string) document.MemFile {
	return document.MemFile{FileName: name, MIMEType: document.PDFType, Data: []byte("%PDF-1.7")}
}

// uploadReady takes the session to Ready with the given document id.
func uploadReady(t *testing.T, s *Session, ft *fakeTransport, id string) {
	t.Helper()
	if err := s.SubmitUpload(pdf("report.pdf")); err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}
	nextCall(t, ft, "upload").reply <- reply{value: id}
	s.Wait()
	if s.Status() != StatusReady {
		t.Fatalf("Status() = %s, want ready", s.Status())
	}
}

func TestExampleScenario(t *testing.T) {
	s, ft, _ := newTestSession(t)

	if s.Status() != StatusNoDocument {
		t.Fatalf("initial Status() = %s", s.Status())
	}

	if err := s.SubmitUpload(pdf("report.pdf")); err != nil {
		t.Fatalf("SubmitUpload: %v", err)
	}
	if s.Status() != StatusUploading {
		t.Fatalf("Status() = %s, want uploading", s.Status())
	}
	c := nextCall(t, ft, "upload")
	if c.fileName != "report.pdf" {
		t.Errorf("uploaded %q", c.fileName)
	}
	c.reply <- reply{value: "doc-42"}
	s.Wait()

	snap := s.Snapshot()
	if snap.Document.ID != "doc-42" {
		t.Fatalf("Document.ID = %q, want doc-42", snap.Document.ID)
	}
	if snap.Notification == nil || snap.Notification.Kind != notify.KindSuccess || snap.Notification.Text != MsgUploaded {
		t.Fatalf("Notification = %+v, want upload success", snap.Notification)
	}

	if !s.SubmitQuestion("What is the total?") {
		t.Fatal("SubmitQuestion rejected in ready state")
	}
	snap = s.Snapshot()
	want := []conversation.Message{{Role: conversation.RoleUser, Content: "What is the total?"}}
	if fmt.Sprint(snap.Transcript) != fmt.Sprint(want) {
		t.Fatalf("Transcript = %+v, want %+v", snap.Transcript, want)
	}
	if !snap.RespondInFlight || snap.Status != StatusResponding {
		t.Fatalf("RespondInFlight = %v, Status = %s", snap.RespondInFlight, snap.Status)
	}

	ask := nextCall(t, ft, "ask")
	if ask.question != "What is the total?" || ask.documentID != "doc-42" {
		t.Errorf("ask call = %+v", ask)
	}
	ask.reply <- reply{value: "The total is $42."}
	s.Wait()

	snap = s.Snapshot()
	if len(snap.Transcript) != 2 || snap.Transcript[1] != (conversation.Message{Role: conversation.RoleAssistant, Content: "The total is $42."}) {
		t.Fatalf("Transcript = %+v", snap.Transcript)
	}
	if snap.RespondInFlight || snap.Status != StatusReady {
		t.Fatalf("RespondInFlight = %v, Status = %s", snap.RespondInFlight, snap.Status)
	}
}

func TestSubmitQuestion_NAsksYieldPairs(t *testing.T) {
	s, ft, _ := newTestSession(t)
	uploadReady(t, s, ft, "doc-1")

	const n = 4
	for i := 0; i < n; i++ {
		if !s.SubmitQuestion(fmt.Sprintf("q%d", i)) {
			t.Fatalf("SubmitQuestion(%d) rejected", i)
		}
		nextCall(t, ft, "ask").reply <- reply{value: fmt.Sprintf("a%d", i)}
		s.Wait()
	}

	tr := s.Snapshot().Transcript
	if len(tr) != 2*n {
		t.Fatalf("len(Transcript) = %d, want %d", len(tr), 2*n)
	}
	for i := 0; i < n; i++ {
		if tr[2*i].Content != fmt.Sprintf("q%d", i) || tr[2*i+1].Content != fmt.Sprintf("a%d", i) {
			t.Errorf("pair %d = %+v, %+v", i, tr[2*i], tr[2*i+1])
		}
	}
}

func TestSubmitQuestion_Guards(t *testing.T) {
	t.Run("no document", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		if s.SubmitQuestion("hello") {
			t.Fatal("accepted question without a document")
		}
		assertUntouched(t, s, ft, 0)
	})

	t.Run("blank input", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		uploadReady(t, s, ft, "doc-1")
		s.DismissNotification()
		for _, text := range []string{"", "   ", "\n\t"} {
			if s.SubmitQuestion(text) {
				t.Fatalf("accepted blank question %q", text)
			}
		}
		assertUntouched(t, s, ft, 0)
	})

	t.Run("while uploading", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		uploadReady(t, s, ft, "doc-1")
		s.DismissNotification()
		if err := s.SubmitUpload(pdf("next.pdf")); err != nil {
			t.Fatalf("SubmitUpload: %v", err)
		}
		up := nextCall(t, ft, "upload")
		if s.SubmitQuestion("hello") {
			t.Fatal("accepted question while uploading")
		}
		assertUntouched(t, s, ft, 0)
		up.reply <- reply{value: "doc-2"}
		s.Wait()
	})

	t.Run("while responding", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		uploadReady(t, s, ft, "doc-1")
		s.DismissNotification()
		if !s.SubmitQuestion("first") {
			t.Fatal("first question rejected")
		}
		ask := nextCall(t, ft, "ask")
		if s.SubmitQuestion("second") {
			t.Fatal("accepted a second concurrent question")
		}
		assertUntouched(t, s, ft, 1)
		ask.reply <- reply{value: "answer"}
		s.Wait()
	})
}

func assertUntouched(t *testing.T, s *Session, ft *fakeTransport, wantLen int) {
	t.Helper()
	snap := s.Snapshot()
	if len(snap.Transcript) != wantLen {
		t.Errorf("len(Transcript) = %d, want %d", len(snap.Transcript), wantLen)
	}
	if snap.Notification != nil {
		t.Errorf("guard produced notification %+v", snap.Notification)
	}
	select {
	case c := <-ft.calls:
		t.Errorf("guard reached the transport: %+v", c)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAskFailure(t *testing.T) {
	s, ft, _ := newTestSession(t)
	uploadReady(t, s, ft, "doc-1")

	s.SubmitQuestion("why?")
	nextCall(t, ft, "ask").reply <- reply{err: errors.New("HTTP 500: traceback ...")}
	s.Wait()

	snap := s.Snapshot()
	if len(snap.Transcript) != 1 || snap.Transcript[0].Role != conversation.RoleUser {
		t.Fatalf("Transcript = %+v, want only the user message", snap.Transcript)
	}
	if snap.RespondInFlight {
		t.Error("RespondInFlight still true after failure")
	}
	if snap.Status != StatusReady {
		t.Errorf("Status = %s, want ready", snap.Status)
	}
	if snap.Notification == nil || snap.Notification.Kind != notify.KindError || snap.Notification.Text != MsgAskFailed {
		t.Errorf("Notification = %+v", snap.Notification)
	}
}

func TestUploadOutcomes(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		s.SubmitUpload(pdf("a.pdf"))
		if s.Controls().UploadEnabled {
			t.Fatal("upload control enabled while uploading")
		}
		if !s.Controls().UploadBusy {
			t.Fatal("upload control not busy while uploading")
		}
		nextCall(t, ft, "upload").reply <- reply{value: "doc-9"}
		s.Wait()

		snap := s.Snapshot()
		if snap.Document.ID != "doc-9" || !snap.Controls.UploadEnabled {
			t.Errorf("Document = %+v, Controls = %+v", snap.Document, snap.Controls)
		}
	})

	t.Run("failure", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		s.SubmitUpload(pdf("a.pdf"))
		nextCall(t, ft, "upload").reply <- reply{err: errors.New("connection refused")}
		s.Wait()

		snap := s.Snapshot()
		if snap.Document.Ready() {
			t.Errorf("Document = %+v, want not ready", snap.Document)
		}
		if !snap.Controls.UploadEnabled {
			t.Error("upload control not re-enabled")
		}
		if snap.Status != StatusNoDocument {
			t.Errorf("Status = %s, want no_document", snap.Status)
		}
		if snap.Notification == nil || snap.Notification.Text != MsgUploadFailed {
			t.Errorf("Notification = %+v", snap.Notification)
		}
	})

	t.Run("empty id is a failure", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		s.SubmitUpload(pdf("a.pdf"))
		nextCall(t, ft, "upload").reply <- reply{value: ""}
		s.Wait()

		if s.Snapshot().Document.Ready() {
			t.Error("empty id made the document ready")
		}
	})

	t.Run("replacement clears previous id", func(t *testing.T) {
		s, ft, _ := newTestSession(t)
		uploadReady(t, s, ft, "doc-1")
		s.SubmitUpload(pdf("b.pdf"))
		snap := s.Snapshot()
		if snap.Document.Ready() || snap.Document.Name != "b.pdf" {
			t.Errorf("Document = %+v during replacement", snap.Document)
		}
		nextCall(t, ft, "upload").reply <- reply{err: errors.New("boom")}
		s.Wait()
		if s.Snapshot().Document.Ready() {
			t.Error("old id restored after failed replacement")
		}
	})
}

func TestSubmitUpload_NonPDF(t *testing.T) {
	s, ft, _ := newTestSession(t)

	err := s.SubmitUpload(document.MemFile{FileName: "notes.txt", MIMEType: "text/plain"})
	if !errors.Is(err, document.ErrInvalidFileType) {
		t.Fatalf("err = %v, want ErrInvalidFileType", err)
	}
	s.Wait()

	snap := s.Snapshot()
	if snap.Notification == nil || snap.Notification.Kind != notify.KindError || snap.Notification.Text != MsgInvalidFileType {
		t.Fatalf("Notification = %+v", snap.Notification)
	}
	if snap.UploadInFlight || snap.Status != StatusNoDocument {
		t.Errorf("UploadInFlight = %v, Status = %s", snap.UploadInFlight, snap.Status)
	}
	if len(ft.calls) != 0 {
		t.Errorf("non-PDF reached the transport")
	}
}

func TestSubmitUpload_BusyIsSilent(t *testing.T) {
	s, ft, _ := newTestSession(t)
	s.SubmitUpload(pdf("a.pdf"))
	up := nextCall(t, ft, "upload")

	if err := s.SubmitUpload(pdf("b.pdf")); !errors.Is(err, document.ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if s.Snapshot().Notification != nil {
		t.Error("busy guard produced a notification")
	}

	up.reply <- reply{value: "doc-a"}
	s.Wait()
	if s.Snapshot().Document != (document.Document{Name: "a.pdf", ID: "doc-a"}) {
		t.Errorf("Document = %+v", s.Snapshot().Document)
	}
}

func TestUploadWhileResponding(t *testing.T) {
	s, ft, _ := newTestSession(t)
	uploadReady(t, s, ft, "doc-1")

	s.SubmitQuestion("q")
	ask := nextCall(t, ft, "ask")

	if !s.Controls().UploadEnabled {
		t.Fatal("upload disabled while responding")
	}
	if err := s.SubmitUpload(pdf("b.pdf")); err != nil {
		t.Fatalf("SubmitUpload while responding: %v", err)
	}
	up := nextCall(t, ft, "upload")
	if s.Status() != StatusUploading {
		t.Errorf("Status() = %s, want uploading", s.Status())
	}

	ask.reply <- reply{value: "a"}
	up.reply <- reply{value: "doc-2"}
	s.Wait()

	snap := s.Snapshot()
	if len(snap.Transcript) != 2 {
		t.Errorf("len(Transcript) = %d, want 2", len(snap.Transcript))
	}
	if snap.Document.ID != "doc-2" || snap.Status != StatusReady {
		t.Errorf("Document = %+v, Status = %s", snap.Document, snap.Status)
	}
}

func TestNotification_ReplacedAndExpires(t *testing.T) {
	s, ft, clock := newTestSession(t)

	s.SubmitUpload(document.MemFile{FileName: "x.doc", MIMEType: "application/msword"})
	clock.Advance(2 * time.Second)

	s.SubmitUpload(pdf("a.pdf"))
	nextCall(t, ft, "upload").reply <- reply{value: "doc-1"}
	s.Wait()

	n := s.Snapshot().Notification
	if n == nil || n.Text != MsgUploaded {
		t.Fatalf("Notification = %+v, want replacement", n)
	}

	clock.Advance(2 * time.Second)
	if s.Snapshot().Notification == nil {
		t.Fatal("replacement expired on the first notification's timer")
	}
	clock.Advance(time.Second)
	if n := s.Snapshot().Notification; n != nil {
		t.Fatalf("Notification = %+v after 3s, want none", n)
	}
}

func TestSendUsesInputBuffer(t *testing.T) {
	s, ft, _ := newTestSession(t)

	s.SetInput("early")
	if s.Controls().InputEnabled || s.Controls().SendEnabled {
		t.Fatal("input enabled without a document")
	}
	if s.Send() {
		t.Fatal("Send accepted without a document")
	}

	uploadReady(t, s, ft, "doc-1")
	s.SetInput("   ")
	if c := s.Controls(); !c.InputEnabled || c.SendEnabled {
		t.Fatalf("Controls = %+v, want input enabled and send disabled", c)
	}

	s.SetInput("  padded question  ")
	if !s.Controls().SendEnabled {
		t.Fatal("send disabled with non-blank input")
	}
	if !s.Send() {
		t.Fatal("Send rejected")
	}
	if got := s.Snapshot().Input; got != "" {
		t.Errorf("Input = %q, want cleared", got)
	}
	if c := s.Controls(); c.InputEnabled || c.SendEnabled {
		t.Errorf("Controls = %+v while responding", c)
	}

	ask := nextCall(t, ft, "ask")
	if ask.question != "  padded question  " {
		t.Errorf("question = %q, want it sent as typed", ask.question)
	}
	ask.reply <- reply{value: "ok"}
	s.Wait()
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) SessionChanged(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func TestObserver_SeesEveryTransition(t *testing.T) {
	s, ft, clock := newTestSession(t)
	rec := &recorder{}
	s.Subscribe(rec)

	uploadReady(t, s, ft, "doc-1")
	s.SubmitQuestion("q")
	nextCall(t, ft, "ask").reply <- reply{value: "a"}
	s.Wait()
	clock.Advance(3 * time.Second)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.snaps) == 0 {
		t.Fatal("observer never called")
	}
	var sawThinking, sawAnswer bool
	for i, snap := range rec.snaps {
		if i > 0 && snap.Revision <= rec.snaps[i-1].Revision {
			t.Errorf("revision %d after %d", snap.Revision, rec.snaps[i-1].Revision)
		}
		entries := snap.Entries()
		if len(entries) > 0 && entries[len(entries)-1].Thinking {
			sawThinking = true
		}
		if len(snap.Transcript) == 2 {
			sawAnswer = true
			if snap.RespondInFlight {
				t.Error("answer visible while still responding")
			}
		}
	}
	if !sawThinking || !sawAnswer {
		t.Errorf("sawThinking = %v, sawAnswer = %v", sawThinking, sawAnswer)
	}
	if last := rec.snaps[len(rec.snaps)-1]; last.Notification != nil {
		t.Errorf("last snapshot still has notification %+v", last.Notification)
	}
}

func TestStaleResultIsDropped(t *testing.T) {
	var c document.Coordinator
	s, _, _ := newTestSession(t)

	old, _ := c.Begin(pdf("a.pdf"))
	// A ticket from another coordinator is never current for this session.
	s.settleUpload(old, "doc-x", nil)

	if s.Snapshot().Document.Ready() {
		t.Error("foreign ticket applied")
	}
	if s.Snapshot().Notification != nil {
		t.Error("stale result produced a notification")
	}
}
