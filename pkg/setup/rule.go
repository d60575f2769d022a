package setup

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/smc"
)

const ruleHeader = `# Installed by sail (https://github.com/sailmode/sail).
# Lets admin users run the pinned SMC helper without a password, one
# exact command line per entry. No wildcards. Remove with: sudo sail setup remove
`

// Rule renders the sudoers allow-list. Every command line the actuator
// can ever issue is enumerated here verbatim; sudo matches arguments
// exactly, so a compromised caller cannot widen this into arbitrary
// privileged execution.
func (s *Setup) Rule() string {
	var b strings.Builder
	b.WriteString(ruleHeader)
	for _, args := range s.allowedCommands() {
		fmt.Fprintf(&b, "%%admin ALL=(root) NOPASSWD: %s %s\n", s.HelperPath, strings.Join(args, " "))
	}
	return b.String()
}

// allowedCommands enumerates the helper argument lists the rule permits.
// The actuator builds its invocations from the same key constants and
// value builders, which keeps the two sides in lockstep.
func (s *Setup) allowedCommands() [][]string {
	cmds := [][]string{
		{"-k", smc.ChargeInhibitKey, "-r"},
		{"-k", smc.LegacyChargingKey, "-r"},
	}

	for _, key := range []string{smc.ChargeInhibitKey, smc.LegacyChargingKey, smc.LegacyAdapterKey} {
		for _, inhibit := range []bool{true, false} {
			v, err := smc.InhibitValue(key, inhibit)
			if err != nil {
				// Static key list, cannot happen.
				panic(err)
			}
			cmds = append(cmds, []string{"-k", key, "-w", hex.EncodeToString(v)})
		}
	}

	// BCLM takes the limit percent itself, so every percent the config
	// layer can produce needs its own entry.
	for p := config.MinChargeLimit; p <= config.MaxChargeLimit; p++ {
		cmds = append(cmds, []string{"-k", smc.ChargeLimitKey, "-w", hex.EncodeToString(smc.LimitValue(p))})
	}

	return cmds
}

// Remove deletes both artifacts, undoing PerformOneTimeSetup. Missing
// files are fine; half-removed state is not, so the rule goes first
// (a rule pointing at a missing helper is harmless, the reverse is a
// password prompt per actuation).
func (s *Setup) Remove() error {
	if err := removeIfPresent(s.RulePath); err != nil {
		return err
	}
	return removeIfPresent(s.HelperPath)
}

func removeIfPresent(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}
