package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/docchat/internal/document"
	"github.com/kalambet/docchat/internal/render"
	"github.com/kalambet/docchat/internal/session"
)

const chatHelp = `Commands:
  /upload <path>  upload a PDF (replaces the current document)
  /status         show the session state
  /clear          dismiss the current notification
  /help           show this help
  /quit           leave the chat
Anything else is sent as a question.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat about a PDF",
	Long: `Start an interactive chat about a PDF.

Examples:
  docchat chat --file ./report.pdf
  docchat chat
  > /upload ./report.pdf
  > What is the total?`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runChat(ctx, a, chatIO{
			in:          os.Stdin,
			out:         cmd.OutOrStdout(),
			interactive: isTerminal(os.Stdin),
		}, file)
	},
}

func init() {
	chatCmd.Flags().String("file", "", "PDF to upload when the chat starts")
}

type chatIO struct {
	in  io.Reader
	out io.Writer
	// With piped input each line waits for the previous one to settle, so
	// a script can upload and then ask.
	interactive bool
}

var errQuit = errors.New("quit")

func runChat(ctx context.Context, a *app, cio chatIO, file string) error {
	s := a.newSession(ctx)
	s.Subscribe(render.NewDriver(cio.out, a.renderer(), a.colored))

	if cio.interactive {
		fmt.Fprintf(cio.out, "docchat %s · %s · /help for commands\n", version, a.cfg.Server.BaseURL)
	}

	if file != "" {
		uploadPath(s, file)
		if !cio.interactive {
			s.Wait()
		}
	}

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	// The reader blocks in Read until input ends or the process exits.
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cio.in)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-readCtx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(cio.out)
			break loop
		case line, ok := <-lines:
			if !ok {
				select {
				case err = <-readErr:
				default:
				}
				break loop
			}
			if handleErr := handleLine(s, line, cio.out); errors.Is(handleErr, errQuit) {
				break loop
			}
			if !cio.interactive {
				s.Wait()
			}
		}
	}

	// In-flight requests are never cancelled; let them settle so the last
	// answer is shown.
	s.Wait()
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func handleLine(s *session.Session, line string, out io.Writer) error {
	trimmed := strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(trimmed, " ")

	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		fmt.Fprintln(out, chatHelp)
	case "/clear":
		s.DismissNotification()
	case "/status":
		showSessionStatus(s.Snapshot())
	case "/upload":
		path := strings.TrimSpace(arg)
		if path == "" {
			printWarning("usage: /upload <path>")
			return nil
		}
		uploadPath(s, path)
	default:
		if trimmed == "" {
			return nil
		}
		s.SetInput(line)
		if !s.Send() {
			explainRejectedQuestion(s.Snapshot())
		}
	}
	return nil
}

// uploadPath reports local problems directly; everything the session
// decides is shown through its notifications.
func uploadPath(s *session.Session, path string) {
	f, err := document.OpenLocal(path)
	if err != nil {
		printError("%v", err)
		return
	}
	if f.Pages() > 0 {
		printStep("%s (%d pages)", f.Name(), f.Pages())
	}
	if err := s.SubmitUpload(f); errors.Is(err, document.ErrBusy) {
		printWarning("an upload is already in progress")
	}
}

func explainRejectedQuestion(snap session.Snapshot) {
	switch snap.Status {
	case session.StatusNoDocument:
		printWarning("upload a PDF first: /upload <path>")
	case session.StatusUploading:
		printWarning("wait for the upload to finish")
	case session.StatusResponding:
		printWarning("still waiting for the previous answer")
	}
}

func showSessionStatus(snap session.Snapshot) {
	printStatus("Status", "%s", snap.Status)
	if snap.Document.Name != "" {
		id := snap.Document.ID
		if id == "" {
			id = "not ready"
		}
		printStatus("Document", "%s (%s)", snap.Document.Name, id)
	} else {
		printStatus("Document", "none")
	}
	printStatus("Messages", "%d", len(snap.Transcript))
	printStatus("Upload", "%s", enabledLabel(snap.Controls.UploadEnabled))
	printStatus("Ask", "%s", enabledLabel(snap.Controls.InputEnabled))
}

func enabledLabel(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
