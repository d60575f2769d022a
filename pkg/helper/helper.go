// Package helper implements the privileged SMC helper mode of the sail
// binary. When the executable is installed at the trusted helper path and
// invoked through sudo, it speaks a tiny fixed CLI:
//
//	sail-smc -k <4-char-key> -r         read a key
//	sail-smc -k <4-char-key> -w <hex>   write raw bytes to a key
//
// Reads print a line containing "(bytes XX XX ...)"; exit code 0 means
// success. The sudoers rule installed by pkg/setup allow-lists exactly
// these invocations and nothing else.
package helper

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/charlie0129/gosmc"
	flag "github.com/spf13/pflag"

	"github.com/sailmode/sail/pkg/smc"
)

// InvocationName is the basename under which the binary switches into
// helper mode.
const InvocationName = "sail-smc"

// EnvVar forces helper mode regardless of the executable name. Useful
// when running from a build tree.
const EnvVar = "SAIL_SMC_HELPER"

// newConn is a seam so tests can substitute a mocked SMC connection.
var newConn = func() *smc.Conn { return smc.New() }

// Main parses helper-mode arguments (excluding argv[0]) and performs the
// requested SMC operation. It returns the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(InvocationName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	key := fs.StringP("key", "k", "", "4-character SMC key")
	read := fs.BoolP("read", "r", false, "read the key")
	write := fs.StringP("write", "w", "", "write raw hex bytes to the key")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if len(*key) != 4 || (*read == (*write != "")) {
		usage(stderr)
		return 1
	}

	conn := newConn()
	if err := conn.Open(); err != nil {
		fmt.Fprintf(stderr, "Error: cannot open SMC: %v\n", err)
		return 1
	}
	defer conn.Close()

	if *read {
		v, err := conn.Read(*key)
		if err != nil {
			fmt.Fprintln(stdout, "no data")
			return 1
		}
		fmt.Fprintln(stdout, FormatValue(v))
		return 0
	}

	value, err := hex.DecodeString(*write)
	if err != nil || len(value) == 0 {
		fmt.Fprintf(stderr, "Error: invalid hex value %q\n", *write)
		return 1
	}
	if err := conn.Write(*key, value); err != nil {
		fmt.Fprintf(stderr, "Error: write failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s -k <key> -r         (read)\n", InvocationName)
	fmt.Fprintf(w, "       %s -k <key> -w <hex>   (write)\n", InvocationName)
}

// FormatValue renders an SMC value in the helper's read output format:
//
//	CHTE  [hex_]  (bytes 01 00 00 00)
func FormatValue(v gosmc.SMCVal) string {
	if len(v.Bytes) == 0 {
		return fmt.Sprintf("  %-4s  [%-4s]  no data", v.Key, v.DataType)
	}

	out := fmt.Sprintf("  %-4s  [%-4s]  (bytes", v.Key, v.DataType)
	for _, b := range v.Bytes {
		out += fmt.Sprintf(" %02x", b)
	}
	return out + ")"
}
