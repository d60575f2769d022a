package helper

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charlie0129/gosmc"

	"github.com/sailmode/sail/pkg/smc"
)

func withMockConn(t *testing.T, prefill map[string][]byte) {
	t.Helper()
	orig := newConn
	newConn = func() *smc.Conn { return smc.NewMock(prefill) }
	t.Cleanup(func() { newConn = orig })
}

func TestMainReadPrintsBytes(t *testing.T) {
	withMockConn(t, map[string][]byte{
		smc.ChargeInhibitKey: {0x01, 0x00, 0x00, 0x00},
	})

	var stdout, stderr bytes.Buffer
	code := Main([]string{"-k", "CHTE", "-r"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("Main() exit code = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "bytes 01 00 00 00") {
		t.Errorf("read output %q does not contain bytes group", stdout.String())
	}
}

func TestMainWriteThenRead(t *testing.T) {
	withMockConn(t, map[string][]byte{
		smc.LegacyChargingKey: {0x00},
	})

	var stdout, stderr bytes.Buffer
	if code := Main([]string{"-k", "CH0B", "-w", "02"}, &stdout, &stderr); code != 0 {
		t.Fatalf("write exit code = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ok") {
		t.Errorf("write output %q missing ok", stdout.String())
	}

	stdout.Reset()
	if code := Main([]string{"-k", "CH0B", "-r"}, &stdout, &stderr); code != 0 {
		t.Fatalf("read exit code = %d", code)
	}
	got, err := ParseReadOutput(stdout.String())
	if err != nil {
		t.Fatalf("ParseReadOutput() error = %v", err)
	}
	if !smc.Inhibited(got) {
		t.Errorf("expected inhibited after writing 02, got %x", got)
	}
}

func TestMainArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no key", args: []string{"-r"}},
		{name: "short key", args: []string{"-k", "CH", "-r"}},
		{name: "read and write", args: []string{"-k", "CHTE", "-r", "-w", "00"}},
		{name: "neither read nor write", args: []string{"-k", "CHTE"}},
		{name: "bad hex", args: []string{"-k", "CHTE", "-w", "zz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withMockConn(t, nil)
			var stdout, stderr bytes.Buffer
			if code := Main(tt.args, &stdout, &stderr); code == 0 {
				t.Errorf("Main(%v) exit code = 0, want nonzero", tt.args)
			}
		})
	}
}

func TestParseReadOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    []byte
		wantErr bool
	}{
		{
			name: "single byte",
			out:  "  CH0B  [ui8 ]  (bytes 02)\n",
			want: []byte{0x02},
		},
		{
			name: "four bytes",
			out:  "  CHTE  [hex_]  (bytes 01 00 00 00)\n",
			want: []byte{0x01, 0x00, 0x00, 0x00},
		},
		{
			name: "noise before and after",
			out:  "sudo: whatever\n  CHTE  [hex_]  (bytes 00 00 00 00)\ntrailing\n",
			want: []byte{0x00, 0x00, 0x00, 0x00},
		},
		{
			name:    "no data",
			out:     "no data\n",
			wantErr: true,
		},
		{
			name:    "malformed byte",
			out:     "  CHTE  [hex_]  (bytes 0x 00)\n",
			wantErr: true,
		},
		{
			name:    "empty group",
			out:     "  CHTE  [hex_]  (bytes)\n",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReadOutput(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseReadOutput() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ParseReadOutput() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestFormatValueRoundTrip(t *testing.T) {
	v := gosmc.SMCVal{Key: "CHTE", DataType: "hex_", Bytes: []byte{0x01, 0x00, 0x00, 0x00}}
	got, err := ParseReadOutput(FormatValue(v))
	if err != nil {
		t.Fatalf("ParseReadOutput(FormatValue()) error = %v", err)
	}
	if !bytes.Equal(got, v.Bytes) {
		t.Errorf("round trip = %x, want %x", got, v.Bytes)
	}
}
