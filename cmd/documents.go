package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/obfuscate"
	"github.com/KaramelBytes/veiltext-cli/internal/parser"
	"github.com/KaramelBytes/veiltext-cli/internal/session"
	"github.com/KaramelBytes/veiltext-cli/internal/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	showRaw    bool
	showReveal bool
	closeYes   bool
	writeFile  string
	importWait bool
	listJSON   bool
	listAll    bool
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	highColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

var newCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Open a new empty document and make it active",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			title := ""
			if len(args) == 1 {
				title = args[0]
			}
			doc := a.ws.Store.CreateDocument(title)
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Opened %s: %s\n", doc.ID, doc.Title)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List open documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			out := cmd.OutOrStdout()
			docs := a.ws.Store.Visible()
			if listAll {
				docs = a.ws.Store.List()
			}
			if listJSON {
				b, err := utils.PrettyJSON(a.ws.Store.Snapshot())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			if len(docs) == 0 {
				fmt.Fprintln(out, "(no visible documents; 'veiltext unhide' shows hidden ones)")
				return nil
			}
			active := a.ws.Store.ActiveID()
			for _, d := range docs {
				marker := " "
				if d.ID == active {
					marker = "*"
				}
				hidden := ""
				if d.Hidden {
					hidden = " [hidden]"
				}
				fmt.Fprintf(out, "%s %s: %s (%d words, %s)%s\n", marker, d.ID, d.Title, d.WordCount, scoreLabel(d), hidden)
			}
			if n := a.ws.Store.Len() - len(docs); n > 0 {
				dimColor.Fprintf(out, "(%d hidden)\n", n)
			}
			return nil
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a document (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			id, err := a.docID(args)
			if err != nil {
				return err
			}
			d, err := a.ws.Store.Get(id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			content := d.Content
			if showReveal {
				content = revealMarks(content)
			}
			if showRaw {
				fmt.Fprint(out, content)
				return nil
			}
			fmt.Fprintf(out, "%s: %s\n", d.ID, d.Title)
			if d.Source != "" {
				fmt.Fprintf(out, "source: %s\n", d.Source)
			}
			marks := obfuscate.CountMarks(d.Content, obfuscate.Standard) + obfuscate.CountMarks(d.Content, obfuscate.Premium)
			fmt.Fprintf(out, "words: %d  marks: %d  ai: %s\n", d.WordCount, marks, scoreLabel(d))
			dimColor.Fprintln(out, strings.Repeat("─", 40))
			fmt.Fprintln(out, content)
			return nil
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <id>",
	Short: "Make a document active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			if err := a.ws.Store.SetActive(args[0]); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Active document is %s\n", args[0])
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a document (a blank title falls back to \"Tab <id>\")",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			d, err := a.ws.Store.RenameDocument(args[0], args[1])
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Renamed %s to %q\n", d.ID, d.Title)
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a document; closing the last one needs --yes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			id := args[0]
			err := a.ws.Store.CloseDocument(id, closeYes)
			if errors.Is(err, session.ErrLastDocument) {
				return fmt.Errorf("document %s is the last one and its content would be lost; re-run with --yes", id)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			okColor.Fprintf(out, "✓ Closed %s\n", id)
			if active := a.ws.Store.ActiveID(); active != "" {
				fmt.Fprintf(out, "Active document is %s\n", active)
			}
			return nil
		})
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <id> [text...]",
	Short: "Replace a document's content with text, a file (--file) or stdin (--file -)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args[1:], " ")
		switch {
		case writeFile == "-":
			b, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), parser.MaxUploadBytes))
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			text = string(b)
		case writeFile != "":
			t, err := parser.ParseFile(writeFile)
			if err != nil {
				return err
			}
			text = t
		}
		return withApp(func(_ context.Context, a *app) error {
			d, err := a.ws.Write(args[0], text)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s (%d words)\n", d.ID, d.WordCount)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Open files (txt, md, docx) as new documents and score them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read file: %w", err)
				}
				d, ch, err := a.ws.Upload(ctx, path, data)
				if err != nil {
					return err
				}
				okColor.Fprintf(out, "✓ Imported %s as %s (%d words)\n", d.Title, d.ID, d.WordCount)
				if importWait && ch != nil {
					printOutcome(out, <-ch)
				}
			}
			return nil
		})
	},
}

var hideCmd = &cobra.Command{
	Use:   "hide <id>",
	Short: "Hide a document from the list without closing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			d, err := a.ws.Store.HideDocument(args[0])
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Hid %s: %s\n", d.ID, d.Title)
			return nil
		})
	},
}

var unhideCmd = &cobra.Command{
	Use:     "unhide",
	Aliases: []string{"show-all"},
	Short:   "Show all hidden documents again",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Showing %d hidden documents\n", a.ws.Store.ShowAll())
			return nil
		})
	},
}

var uploadsCmd = &cobra.Command{
	Use:   "uploads",
	Short: "List imported files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			out := cmd.OutOrStdout()
			ups := a.ws.Store.Uploads()
			if len(ups) == 0 {
				fmt.Fprintln(out, "(nothing uploaded)")
				return nil
			}
			for i, u := range ups {
				fmt.Fprintf(out, "%d. %s -> %s (%d words, %s)\n", i, u.Name, u.DocID, u.Words, u.UploadedAt.Local().Format(time.DateTime))
			}
			return nil
		})
	},
}

var uploadsRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove one entry from the uploads list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index: %q", args[0])
		}
		return withApp(func(_ context.Context, a *app) error {
			u, err := a.ws.Store.RemoveUpload(i)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Removed %s from uploads\n", u.Name)
			return nil
		})
	},
}

var uploadsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the uploads list (documents stay open)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Cleared %d uploaded files\n", a.ws.Store.ClearUploads())
			return nil
		})
	},
}

func scoreLabel(d session.Document) string {
	if !d.HasScore() {
		return "not scored"
	}
	return fmt.Sprintf("AI %d%%", d.Score())
}

// revealMarks renders every invisible mark as <U+XXXX>.
func revealMarks(text string) string {
	var b strings.Builder
	for _, r := range text {
		if obfuscate.IsMark(r) {
			fmt.Fprintf(&b, "<U+%04X>", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func preview(text string) string { return utils.Preview(text, 60) }

func init() {
	rootCmd.AddCommand(newCmd, listCmd, showCmd, selectCmd, renameCmd, closeCmd, writeCmd, importCmd, hideCmd, unhideCmd, uploadsCmd)
	uploadsCmd.AddCommand(uploadsRemoveCmd, uploadsClearCmd)
	listCmd.Flags().BoolVarP(&listAll, "all", "a", false, "include hidden documents")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print the documents and active id as JSON")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "print only the content")
	showCmd.Flags().BoolVar(&showReveal, "reveal", false, "render invisible marks as <U+XXXX>")
	closeCmd.Flags().BoolVarP(&closeYes, "yes", "y", false, "confirm closing the last document")
	writeCmd.Flags().StringVarP(&writeFile, "file", "f", "", "read content from a file, or - for stdin")
	importCmd.Flags().BoolVar(&importWait, "wait", true, "wait for each AI score before continuing")
}
