// Package setup performs the one-time privilege elevation install: it
// copies the running executable to the trusted helper path and writes a
// sudoers rule that allow-lists, per exact command line, the handful of
// SMC invocations the actuator issues. Once both artifacts are in place,
// the daemon can actuate charging without ever prompting for a password.
//
// Setup is all-or-nothing. Both artifacts are staged and validated
// before either goes live, and a failure after the helper went live
// removes it again. A helper without a matching rule would force a
// password prompt on every actuation; a rule without a helper is dead
// weight.
package setup

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHelperPath is where the privileged helper copy of the sail
	// executable lives. The sudoers rule pins this exact path.
	DefaultHelperPath = "/Library/PrivilegedTools/sail-smc"
	// DefaultRulePath is the sudoers drop-in holding the allow-list.
	DefaultRulePath = "/etc/sudoers.d/sail"

	helperMode = os.FileMode(0755)
	// sudo refuses rule files that are group-writable or world-readable.
	ruleMode = os.FileMode(0440)

	visudoTimeout = 10 * time.Second
)

type Setup struct {
	HelperPath string
	RulePath   string

	// Seams for tests, which cannot chown to root or run visudo.
	sourceExecutable func() (string, error)
	chown            func(path string, uid, gid int) error
	validateRule     func(ctx context.Context, path string) error
}

// New returns a Setup using the standard system paths.
func New() *Setup {
	return NewWithPaths(DefaultHelperPath, DefaultRulePath)
}

// NewWithPaths returns a Setup installing to the given paths.
func NewWithPaths(helperPath, rulePath string) *Setup {
	return &Setup{
		HelperPath:       helperPath,
		RulePath:         rulePath,
		sourceExecutable: selfExecutable,
		chown:            os.Chown,
		validateRule:     runVisudo,
	}
}

func selfExecutable() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", errors.Wrap(err, "failed to get the path to the current executable")
	}
	return filepath.Abs(exePath)
}

// runVisudo syntax-checks a staged sudoers file. A malformed drop-in
// would lock every admin out of sudo, so this must pass before the rule
// goes live.
func runVisudo(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, visudoTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "visudo", "-c", "-f", path).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "visudo rejected the rule: %s", string(out))
	}
	return nil
}

// PerformOneTimeSetup installs the helper and the sudoers rule. It
// requires root and explicit user consent, both enforced by the caller.
// Running it again after success re-writes both artifacts, which is how
// repairs and upgrades work.
func (s *Setup) PerformOneTimeSetup(ctx context.Context) error {
	src, err := s.sourceExecutable()
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"source": src,
		"helper": s.HelperPath,
		"rule":   s.RulePath,
	}).Info("Installing privileged helper and sudoers rule")

	helperTmp := s.HelperPath + ".tmp"
	ruleTmp := s.RulePath + ".tmp"
	defer func() {
		// Leftover staging files from a failed run.
		_ = os.Remove(helperTmp)
		_ = os.Remove(ruleTmp)
	}()

	if err := s.stageHelper(src, helperTmp); err != nil {
		return errors.Wrap(err, "staging helper")
	}
	if err := s.stageRule(ctx, ruleTmp); err != nil {
		return errors.Wrap(err, "staging sudoers rule")
	}

	// Everything is staged and validated, go live. Rename within one
	// directory replaces atomically.
	if err := os.Rename(helperTmp, s.HelperPath); err != nil {
		return errors.Wrapf(err, "failed to install helper to %s", s.HelperPath)
	}
	if err := os.Rename(ruleTmp, s.RulePath); err != nil {
		// The helper must not outlive a failed rule install.
		if rmErr := os.Remove(s.HelperPath); rmErr != nil {
			logrus.WithError(rmErr).Warnf("failed to roll back helper at %s", s.HelperPath)
		}
		return errors.Wrapf(err, "failed to install sudoers rule to %s", s.RulePath)
	}

	logrus.Info("Privilege elevation setup complete")
	return nil
}

func (s *Setup) stageHelper(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(dst))
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, helperMode)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "failed to copy executable to %s", dst)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", dst)
	}

	// The create mode is subject to umask, so set it explicitly.
	if err := os.Chmod(dst, helperMode); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", dst)
	}
	if err := s.chown(dst, 0, 0); err != nil {
		return errors.Wrapf(err, "failed to chown %s to root:wheel", dst)
	}
	return nil
}

func (s *Setup) stageRule(ctx context.Context, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(dst))
	}

	if err := os.WriteFile(dst, []byte(s.Rule()), ruleMode); err != nil {
		return errors.Wrapf(err, "failed to write %s", dst)
	}
	if err := os.Chmod(dst, ruleMode); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", dst)
	}
	if err := s.chown(dst, 0, 0); err != nil {
		return errors.Wrapf(err, "failed to chown %s to root:wheel", dst)
	}
	return s.validateRule(ctx, dst)
}

// VerifyArtifacts reports whether both on-disk artifacts are present and
// consistent: an executable helper at the pinned path, and a rule file
// whose content matches exactly what this version would install. A rule
// from an older version with a different allow-list fails verification,
// prompting the user to re-run setup.
func (s *Setup) VerifyArtifacts() error {
	fi, err := os.Stat(s.HelperPath)
	if err != nil {
		return errors.Wrapf(err, "helper missing at %s", s.HelperPath)
	}
	if !fi.Mode().IsRegular() || fi.Mode().Perm()&0111 == 0 {
		return errors.Errorf("helper at %s is not an executable file (mode %s)", s.HelperPath, fi.Mode())
	}

	rule, err := os.ReadFile(s.RulePath)
	if err != nil {
		return errors.Wrapf(err, "sudoers rule missing at %s", s.RulePath)
	}
	if string(rule) != s.Rule() {
		return errors.Errorf("sudoers rule at %s does not match the expected allow-list", s.RulePath)
	}

	return nil
}

// IsComplete combines the persisted setup flag with the artifact checks.
// Neither alone is trusted: the flag can desynchronize from the
// filesystem across reinstalls, and artifacts without the flag mean
// setup never finished from the daemon's point of view.
func (s *Setup) IsComplete(flagged bool) bool {
	return flagged && s.VerifyArtifacts() == nil
}
