package setup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

// newTestSetup wires a Setup into a temp dir with the privileged seams
// stubbed out: chown is a no-op and visudo always passes unless a test
// overrides them.
func newTestSetup(t *testing.T) *Setup {
	t.Helper()
	dir := t.TempDir()

	s := NewWithPaths(filepath.Join(dir, "tools", "sail-smc"), filepath.Join(dir, "sudoers.d", "sail"))

	src := filepath.Join(dir, "sail")
	if err := os.WriteFile(src, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	s.sourceExecutable = func() (string, error) { return src, nil }
	s.chown = func(string, int, int) error { return nil }
	s.validateRule = func(context.Context, string) error { return nil }
	return s
}

func TestPerformOneTimeSetup(t *testing.T) {
	s := newTestSetup(t)

	if err := s.PerformOneTimeSetup(context.Background()); err != nil {
		t.Fatalf("PerformOneTimeSetup() error = %v", err)
	}

	fi, err := os.Stat(s.HelperPath)
	if err != nil {
		t.Fatalf("helper not installed: %v", err)
	}
	if fi.Mode().Perm() != 0755 {
		t.Errorf("helper mode = %o, want 0755", fi.Mode().Perm())
	}

	rule, err := os.ReadFile(s.RulePath)
	if err != nil {
		t.Fatalf("rule not installed: %v", err)
	}
	if string(rule) != s.Rule() {
		t.Error("installed rule does not match the renderer output")
	}

	if err := s.VerifyArtifacts(); err != nil {
		t.Errorf("VerifyArtifacts() after setup = %v, want nil", err)
	}
	if !s.IsComplete(true) {
		t.Error("IsComplete(true) = false after successful setup")
	}
	if s.IsComplete(false) {
		t.Error("IsComplete(false) must stay false even with artifacts present")
	}
}

func TestSetupIsRepeatable(t *testing.T) {
	s := newTestSetup(t)

	for i := 0; i < 2; i++ {
		if err := s.PerformOneTimeSetup(context.Background()); err != nil {
			t.Fatalf("run %d: PerformOneTimeSetup() error = %v", i, err)
		}
	}
	if err := s.VerifyArtifacts(); err != nil {
		t.Errorf("VerifyArtifacts() after re-run = %v", err)
	}
}

func TestSetupRuleValidationFailureLeavesNothing(t *testing.T) {
	s := newTestSetup(t)
	s.validateRule = func(context.Context, string) error {
		return errors.New("syntax error near line 3")
	}

	if err := s.PerformOneTimeSetup(context.Background()); err == nil {
		t.Fatal("PerformOneTimeSetup() should fail when visudo rejects the rule")
	}

	if _, err := os.Stat(s.HelperPath); !os.IsNotExist(err) {
		t.Errorf("helper left behind after failed setup: stat err = %v", err)
	}
	if _, err := os.Stat(s.RulePath); !os.IsNotExist(err) {
		t.Errorf("rule left behind after failed setup: stat err = %v", err)
	}
	if _, err := os.Stat(s.HelperPath + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("helper staging file left behind: stat err = %v", err)
	}
	if s.IsComplete(true) {
		t.Error("IsComplete() must stay false after failed setup")
	}
}

func TestSetupChownFailureLeavesNothing(t *testing.T) {
	s := newTestSetup(t)
	s.chown = func(string, int, int) error {
		return errors.New("operation not permitted")
	}

	if err := s.PerformOneTimeSetup(context.Background()); err == nil {
		t.Fatal("PerformOneTimeSetup() should fail when chown fails")
	}
	if _, err := os.Stat(s.HelperPath); !os.IsNotExist(err) {
		t.Error("helper left behind after failed setup")
	}
	if s.IsComplete(true) {
		t.Error("IsComplete() must stay false after failed setup")
	}
}

func TestVerifyArtifacts(t *testing.T) {
	t.Run("missing helper", func(t *testing.T) {
		s := newTestSetup(t)
		if err := s.PerformOneTimeSetup(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(s.HelperPath); err != nil {
			t.Fatal(err)
		}
		if err := s.VerifyArtifacts(); err == nil {
			t.Error("VerifyArtifacts() = nil with helper missing")
		}
	})

	t.Run("helper not executable", func(t *testing.T) {
		s := newTestSetup(t)
		if err := s.PerformOneTimeSetup(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := os.Chmod(s.HelperPath, 0644); err != nil {
			t.Fatal(err)
		}
		if err := s.VerifyArtifacts(); err == nil {
			t.Error("VerifyArtifacts() = nil with non-executable helper")
		}
	})

	t.Run("stale rule content", func(t *testing.T) {
		s := newTestSetup(t)
		if err := s.PerformOneTimeSetup(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(s.RulePath, []byte("# old version\n"), 0440); err != nil {
			t.Fatal(err)
		}
		if err := s.VerifyArtifacts(); err == nil {
			t.Error("VerifyArtifacts() = nil with mismatched rule content")
		}
	})
}

func TestRuleContent(t *testing.T) {
	s := NewWithPaths("/Library/PrivilegedTools/sail-smc", "/etc/sudoers.d/sail")
	rule := s.Rule()

	wantLines := []string{
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CHTE -r",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CH0B -r",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CHTE -w 01000000",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CHTE -w 00000000",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CH0B -w 02",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CH0B -w 00",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CH0I -w 01",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k CH0I -w 00",
		// Lowest and highest BCLM caps; one line per percent in between.
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k BCLM -w 14",
		"%admin ALL=(root) NOPASSWD: /Library/PrivilegedTools/sail-smc -k BCLM -w 64",
	}
	for _, line := range wantLines {
		if !strings.Contains(rule, line+"\n") {
			t.Errorf("rule missing line %q", line)
		}
	}

	if strings.Contains(rule, "*") {
		t.Error("rule must not contain wildcards")
	}

	// 2 reads + 6 fixed writes + 81 BCLM caps.
	var entries int
	for _, line := range strings.Split(rule, "\n") {
		if strings.HasPrefix(line, "%admin") {
			entries++
		}
	}
	if entries != 89 {
		t.Errorf("rule has %d entries, want 89", entries)
	}
}

func TestRemove(t *testing.T) {
	s := newTestSetup(t)
	if err := s.PerformOneTimeSetup(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(s.HelperPath); !os.IsNotExist(err) {
		t.Error("helper still present after Remove()")
	}
	if _, err := os.Stat(s.RulePath); !os.IsNotExist(err) {
		t.Error("rule still present after Remove()")
	}

	// Removing an already-clean system is fine.
	if err := s.Remove(); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}
