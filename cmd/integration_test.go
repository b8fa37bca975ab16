package cmd

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// resetFlags puts every flag back to its default so state does not leak
// between invocations of the shared root command.
func resetFlags() {
	var reset func(fs *pflag.FlagSet)
	reset = func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
		for _, sub := range c.Commands() {
			reset(sub.Flags())
		}
	}
}

// runCmd executes the root command with args and returns its output.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := tryCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

func tryCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// isolate points HOME at a temp dir and the detector at a local server
// that answers with score.
func isolate(t *testing.T, score string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VEILTEXT_HOME", "")

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Essay string `json:"essay"`
		}
		if r.URL.Path != "/detect" || json.NewDecoder(r.Body).Decode(&req) != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(score))
	})}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	t.Setenv("VEILTEXT_DETECTOR_URL", "http://"+ln.Addr().String())
	t.Setenv("VEILTEXT_RETRY_MAX_ATTEMPTS", "1")
	return home
}

func TestCLI_DocumentLifecycle(t *testing.T) {
	isolate(t, "42")

	out := runCmd(t, "list")
	if !strings.Contains(out, "* 1: New Tab 1 (0 words, not scored)") {
		t.Fatalf("fresh start should have one empty document, got:\n%s", out)
	}

	runCmd(t, "new", "essay")
	runCmd(t, "write", "2", "hello", "world")
	runCmd(t, "rename", "1", "   ")

	out = runCmd(t, "list")
	for _, want := range []string{"  1: Tab 1 (0 words", "* 2: essay (2 words, not scored)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list missing %q:\n%s", want, out)
		}
	}

	out = runCmd(t, "obfuscate", "--seed", "7")
	if !strings.Contains(out, "standard marks") {
		t.Fatalf("unexpected obfuscate output:\n%s", out)
	}
	runCmd(t, "strip")
	if out = runCmd(t, "show", "2", "--raw"); out != "hello world" {
		t.Fatalf("strip should restore the text, got %q", out)
	}

	out = runCmd(t, "score")
	if !strings.Contains(out, "essay: AI 42%") {
		t.Fatalf("unexpected score output:\n%s", out)
	}
	if out = runCmd(t, "list"); !strings.Contains(out, "essay (2 words, AI 42%)") {
		t.Fatalf("score should persist:\n%s", out)
	}

	var snap struct {
		ActiveID  string `json:"active_id"`
		Documents []struct {
			ID      string `json:"id"`
			AIScore *int   `json:"ai_score"`
		} `json:"documents"`
	}
	if err := json.Unmarshal([]byte(runCmd(t, "list", "--json")), &snap); err != nil {
		t.Fatalf("list --json: %v", err)
	}
	if snap.ActiveID != "2" || len(snap.Documents) != 2 || snap.Documents[1].AIScore == nil || *snap.Documents[1].AIScore != 42 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	runCmd(t, "select", "1")
	runCmd(t, "close", "2")
	if _, err := tryCmd(t, "close", "1"); err == nil {
		t.Fatalf("closing the last document without --yes should fail")
	}
	runCmd(t, "close", "1", "--yes")

	// an emptied store starts fresh on the next run, with the counter kept
	if out = runCmd(t, "list"); !strings.Contains(out, "* 3: New Tab 3") {
		t.Fatalf("expected a fresh document after closing all, got:\n%s", out)
	}
}

func TestCLI_ImportAndSelection(t *testing.T) {
	home := isolate(t, "91")
	path := filepath.Join(home, "draft.md")
	if err := os.WriteFile(path, []byte("make this loud please"), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	out := runCmd(t, "import", path)
	if !strings.Contains(out, "Imported draft.md as 2") || !strings.Contains(out, "high likelihood") {
		t.Fatalf("unexpected import output:\n%s", out)
	}

	runCmd(t, "selection", "2", "uppercase", "--start", "5", "--end", "9")
	if out = runCmd(t, "show", "--raw"); out != "make THIS loud please" {
		t.Fatalf("selection not applied: %q", out)
	}

	runCmd(t, "selection", "2", "new-tab", "--start", "10", "--end", "14")
	if out = runCmd(t, "show", "--raw"); out != "loud" {
		t.Fatalf("new tab should hold the selection: %q", out)
	}

	if _, err := tryCmd(t, "selection", "2", "explode", "--end", "1"); err == nil {
		t.Fatalf("unknown action should fail")
	}

	if out = runCmd(t, "uploads"); !strings.Contains(out, "0. draft.md -> 2 (4 words") {
		t.Fatalf("unexpected uploads:\n%s", out)
	}
	runCmd(t, "hide", "2")
	out = runCmd(t, "list")
	if strings.Contains(out, "draft.md") || !strings.Contains(out, "(1 hidden)") {
		t.Fatalf("hidden document still listed:\n%s", out)
	}
	if out = runCmd(t, "list", "--all"); !strings.Contains(out, "2: draft.md") || !strings.Contains(out, "[hidden]") {
		t.Fatalf("list --all should include hidden documents:\n%s", out)
	}
	if out = runCmd(t, "unhide"); !strings.Contains(out, "Showing 1 hidden") {
		t.Fatalf("unexpected unhide output:\n%s", out)
	}

	if out = runCmd(t, "uploads", "clear"); !strings.Contains(out, "Cleared 1 uploaded") {
		t.Fatalf("unexpected clear output:\n%s", out)
	}
	if out = runCmd(t, "uploads"); !strings.Contains(out, "(nothing uploaded)") {
		t.Fatalf("uploads should be empty:\n%s", out)
	}
	if out = runCmd(t, "list"); !strings.Contains(out, "draft.md") {
		t.Fatalf("clearing uploads must keep documents open:\n%s", out)
	}
}

func TestCLI_PremiumNeedsTrial(t *testing.T) {
	isolate(t, "10")
	runCmd(t, "write", "1", "abc")

	if _, err := tryCmd(t, "obfuscate", "--mode", "premium"); err == nil {
		t.Fatalf("premium without entitlement should fail")
	}
	out := runCmd(t, "trial", "status")
	if !strings.Contains(out, "trial: not started") || !strings.Contains(out, "premium: false") {
		t.Fatalf("unexpected status:\n%s", out)
	}

	runCmd(t, "trial", "start")
	runCmd(t, "trial", "extend", "2")
	if out = runCmd(t, "trial", "status"); !strings.Contains(out, "premium: true") {
		t.Fatalf("trial should unlock premium:\n%s", out)
	}
	runCmd(t, "obfuscate", "--mode", "premium", "--seed", "1")
}

func TestCLI_Licenses(t *testing.T) {
	isolate(t, "10")
	key := strings.TrimSpace(strings.SplitN(runCmd(t, "license", "generate"), "\n", 2)[0])
	if len(key) != 36 {
		t.Fatalf("expected a uuid key, got %q", key)
	}
	runCmd(t, "license", "redeem", "  "+key+"  ")
	if _, err := tryCmd(t, "license", "redeem", key); err == nil {
		t.Fatalf("duplicate redeem should fail")
	}
	if out := runCmd(t, "license", "list"); !strings.Contains(out, key+"  Active") {
		t.Fatalf("unexpected list:\n%s", out)
	}
	runCmd(t, "license", "revoke", key)
	if out := runCmd(t, "license", "list"); !strings.Contains(out, key+"  Revoked") {
		t.Fatalf("unexpected list after revoke:\n%s", out)
	}
}

func TestCLI_ConfigSetAndStorageBackends(t *testing.T) {
	home := isolate(t, "10")
	runCmd(t, "config", "set", "legacy_word_count", "true")
	if _, err := tryCmd(t, "config", "set", "storage", "floppy"); err == nil {
		t.Fatalf("invalid storage should be rejected")
	}
	if out := runCmd(t, "config", "show"); !strings.Contains(out, "legacy_word_count: true") {
		t.Fatalf("config not saved:\n%s", out)
	}
	// blank content counts as one word under the legacy rule
	if out := runCmd(t, "list"); !strings.Contains(out, "(1 words") {
		t.Fatalf("legacy word count not applied:\n%s", out)
	}

	runCmd(t, "--storage", "sqlite", "new", "in sqlite")
	if _, err := os.Stat(filepath.Join(home, ".veiltext", "data", "veiltext.db")); err != nil {
		t.Fatalf("sqlite database not created: %v", err)
	}
	if out := runCmd(t, "--storage", "sqlite", "list"); !strings.Contains(out, "in sqlite") {
		t.Fatalf("sqlite backend lost the document:\n%s", out)
	}
	if out := runCmd(t, "list"); strings.Contains(out, "in sqlite") {
		t.Fatalf("file backend should not see sqlite documents:\n%s", out)
	}
}

func TestRevealMarks(t *testing.T) {
	if got := revealMarks("a\u200bb\U000E0041"); got != "a<U+200B>b<U+E0041>" {
		t.Fatalf("revealMarks=%q", got)
	}
}
