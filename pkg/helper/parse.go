package helper

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// ParseReadOutput extracts the raw bytes from a helper read line, e.g.
//
//	CHTE  [hex_]  (bytes 01 00 00 00)
//
// It scans all lines and uses the first one carrying a bytes group, so
// callers can feed it the helper's whole stdout.
func ParseReadOutput(out string) ([]byte, error) {
	for _, line := range strings.Split(out, "\n") {
		start := strings.Index(line, "(bytes")
		if start < 0 {
			continue
		}
		end := strings.Index(line[start:], ")")
		if end < 0 {
			continue
		}

		fields := strings.Fields(line[start+len("(bytes") : start+end])
		value := make([]byte, 0, len(fields))
		for _, f := range fields {
			b, err := hex.DecodeString(f)
			if err != nil || len(b) != 1 {
				return nil, errors.Errorf("malformed byte %q in helper output", f)
			}
			value = append(value, b[0])
		}
		if len(value) == 0 {
			return nil, errors.New("empty bytes group in helper output")
		}
		return value, nil
	}
	return nil, errors.New("no bytes group in helper output")
}
