package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/docchat/internal/config"
	"github.com/kalambet/docchat/internal/conversation"
	"github.com/kalambet/docchat/internal/document"
	"github.com/kalambet/docchat/internal/session"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Upload a PDF and ask a single question",
	Long: `Upload a PDF and ask a single question about it.

Examples:
  docchat ask --file ./report.pdf "What is the total?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		question := strings.Join(args, " ")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		answer, err := askOnce(cmd.Context(), a, file, question)
		if err != nil {
			return err
		}

		rendered, err := a.renderer().Render(answer)
		if err != nil {
			rendered = answer
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(rendered, "\n"))
		return nil
	},
}

func init() {
	askCmd.Flags().String("file", "", "PDF to ask about")
}

// askOnce drives a fresh session through upload and one ask cycle.
func askOnce(ctx context.Context, a *app, path, question string) (string, error) {
	s := a.newSession(ctx)

	docID, err := uploadOne(s, path)
	if err != nil {
		return "", err
	}
	printSuccess("Uploaded %s (document %s)", s.Snapshot().Document.Name, docID)

	if !s.SubmitQuestion(question) {
		return "", fmt.Errorf("question is empty")
	}
	s.Wait()

	snap := s.Snapshot()
	last := snap.Transcript[len(snap.Transcript)-1]
	if last.Role != conversation.RoleAssistant {
		return "", notificationError(snap, session.MsgAskFailed)
	}
	return last.Content, nil
}

// uploadOne uploads path through s and waits for the result.
func uploadOne(s *session.Session, path string) (string, error) {
	f, err := document.OpenLocal(path)
	if err != nil {
		return "", err
	}
	if err := s.SubmitUpload(f); err != nil {
		if errors.Is(err, document.ErrInvalidFileType) {
			return "", fmt.Errorf("%s: %s", f.Name(), session.MsgInvalidFileType)
		}
		return "", err
	}
	s.Wait()

	snap := s.Snapshot()
	if !snap.Document.Ready() {
		return "", notificationError(snap, session.MsgUploadFailed)
	}
	return snap.Document.ID, nil
}

func notificationError(snap session.Snapshot, fallback string) error {
	if snap.Notification != nil {
		return errors.New(snap.Notification.Text)
	}
	return errors.New(fallback)
}

// --- upload ---

const maxParallelUploads = 4

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload one or more PDFs and print their document ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return uploadAll(cmd.Context(), a, args, cmd.OutOrStdout())
	},
}

// uploadAll gives every file its own session, so each one is a separate
// single-document upload.
func uploadAll(ctx context.Context, a *app, paths []string, out io.Writer) error {
	ids := make([]string, len(paths))
	var (
		mu     sync.Mutex
		failed []string
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			id, err := uploadOne(a.newSession(gCtx), path)
			if err != nil {
				printError("%s: %v", path, err)
				mu.Lock()
				failed = append(failed, path)
				mu.Unlock()
				return nil
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, path := range paths {
		if ids[i] != "" {
			fmt.Fprintf(out, "%s\t%s\n", path, ids[i])
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d uploads failed", len(failed), len(paths))
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorBold.Sprint(k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
