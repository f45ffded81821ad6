package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jacq-os/jacq/internal/memory"
)

// run executes the root command with fresh flag variables and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	entityID, entityType, entityAliases = "", string(memory.EntityConcept), nil
	factObjectID, factConfidence = "", 0.8
	factSource, factProvenance = string(memory.SourceUserEdit), string(memory.ProvenanceExplicit)
	contextJSON = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("JACQ_EMBEDDING_PROVIDER", "tfidf")
	t.Setenv("JACQ_LOG_LEVEL", "error")
	return filepath.Join(dir, "jacq.db")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "jacq dev") {
		t.Errorf("output = %q", out)
	}
}

func TestMemoryWorkflow(t *testing.T) {
	db := testEnv(t)

	if _, err := run(t, "--db", db, "entity", "add", "Joshua", "--id", "default", "--type", "person"); err != nil {
		t.Fatalf("entity add: %v", err)
	}
	if _, err := run(t, "--db", db, "entity", "add", "JACQ", "--id", "jacq", "-t", "project", "--alias", "jacq-os"); err != nil {
		t.Fatalf("entity add: %v", err)
	}

	out, err := run(t, "--db", db, "entity", "list")
	if err != nil {
		t.Fatalf("entity list: %v", err)
	}
	if !strings.Contains(out, "jacq\tJACQ (project) aka jacq-os") {
		t.Errorf("entity list = %q", out)
	}

	out, err = run(t, "--db", db, "fact", "add", "jacq", "language", "Go")
	if err != nil {
		t.Fatalf("fact add: %v", err)
	}
	if !strings.Contains(out, "jacq language Go [staged, 0.80, 0 accesses]") {
		t.Errorf("fact add = %q", out)
	}
	factID, _, _ := strings.Cut(out, "\t")

	if _, err := run(t, "--db", db, "fact", "add", "default", "works_on", "--object", "jacq", "-c", "0.9"); err != nil {
		t.Fatalf("fact add relationship: %v", err)
	}

	out, err = run(t, "--db", db, "context", "jacq", "status")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	for _, want := range []string{"### [Memory] JACQ (project)", "- language: Go"} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q:\n%s", want, out)
		}
	}

	out, err = run(t, "--db", db, "fact", "retract", factID)
	if err != nil {
		t.Fatalf("fact retract: %v", err)
	}
	if !strings.Contains(out, "[retracted,") {
		t.Errorf("fact retract = %q", out)
	}
	if _, err := run(t, "--db", db, "fact", "promote", factID); err == nil {
		t.Error("promoting a retracted fact should fail")
	}

	out, err = run(t, "--db", db, "maintain")
	if err != nil {
		t.Fatalf("maintain: %v", err)
	}
	if !strings.HasPrefix(out, "evaluated 1:") {
		t.Errorf("maintain = %q", out)
	}
}

func TestFactAddNeedsOneObject(t *testing.T) {
	db := testEnv(t)
	if _, err := run(t, "--db", db, "fact", "add", "x", "likes"); err == nil {
		t.Error("fact add without a value or --object should fail")
	}
	if _, err := run(t, "--db", db, "fact", "add", "x", "likes", "tea", "--object", "y"); err == nil {
		t.Error("fact add with both a value and --object should fail")
	}
}

func TestEmptyContext(t *testing.T) {
	db := testEnv(t)
	out, err := run(t, "--db", db, "context", "anything")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if strings.TrimSpace(out) != "No memories found." {
		t.Errorf("output = %q", out)
	}
}

func TestRouteCommand(t *testing.T) {
	out, err := run(t, "route", "please", "remember", "my", "shell")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.Contains(out, "primary:    remember") || !strings.Contains(out, "memory:     true") {
		t.Errorf("route = %q", out)
	}
}

func TestMissingExplicitConfig(t *testing.T) {
	db := testEnv(t)
	if _, err := run(t, "--db", db, "--config", filepath.Join(t.TempDir(), "missing.toml"), "entity", "list"); err == nil {
		t.Error("a missing --config file should be an error")
	}
}

func TestHookDegradesWhenServerDown(t *testing.T) {
	testEnv(t)
	t.Setenv("JACQ_URL", "http://127.0.0.1:1")
	rootCmd.SetIn(strings.NewReader(`{"prompt":"what did we plan?"}`))
	defer rootCmd.SetIn(nil)

	out, err := run(t, "hook", "submit")
	if err != nil {
		t.Fatalf("hook: %v", err)
	}
	if !strings.Contains(out, `"hookEventName":"UserPromptSubmit"`) || !strings.Contains(out, `"additionalContext":""`) {
		t.Errorf("hook output = %q", out)
	}
}
