package smc

import (
	"bytes"
	"testing"
)

func TestInhibitValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		inhibit bool
		want    []byte
		wantErr bool
	}{
		{name: "chte inhibit", key: ChargeInhibitKey, inhibit: true, want: []byte{0x01, 0x00, 0x00, 0x00}},
		{name: "chte allow", key: ChargeInhibitKey, inhibit: false, want: []byte{0x00, 0x00, 0x00, 0x00}},
		{name: "ch0b inhibit", key: LegacyChargingKey, inhibit: true, want: []byte{0x02}},
		{name: "ch0b allow", key: LegacyChargingKey, inhibit: false, want: []byte{0x00}},
		{name: "ch0i inhibit", key: LegacyAdapterKey, inhibit: true, want: []byte{0x01}},
		{name: "ch0i allow", key: LegacyAdapterKey, inhibit: false, want: []byte{0x00}},
		{name: "bclm has no fixed value", key: ChargeLimitKey, inhibit: true, wantErr: true},
		{name: "unknown key", key: "XXYZ", inhibit: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InhibitValue(tt.key, tt.inhibit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InhibitValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("InhibitValue() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestLimitValue(t *testing.T) {
	if got := LimitValue(80); !bytes.Equal(got, []byte{0x50}) {
		t.Errorf("LimitValue(80) = %x, want 50", got)
	}
	if got := LimitValue(120); !bytes.Equal(got, []byte{0x64}) {
		t.Errorf("LimitValue(120) = %x, want 64 (clamped)", got)
	}
	if got := LimitValue(-5); !bytes.Equal(got, []byte{0x00}) {
		t.Errorf("LimitValue(-5) = %x, want 00 (clamped)", got)
	}
}

func TestInhibited(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  bool
	}{
		{name: "chte inhibited", value: []byte{0x01, 0x00, 0x00, 0x00}, want: true},
		{name: "chte allowed", value: []byte{0x00, 0x00, 0x00, 0x00}, want: false},
		{name: "ch0b inhibited", value: []byte{0x02}, want: true},
		{name: "ch0b allowed", value: []byte{0x00}, want: false},
		{name: "empty read", value: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Inhibited(tt.value); got != tt.want {
				t.Errorf("Inhibited(%x) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestMockRoundTrip(t *testing.T) {
	c := NewMock(map[string][]byte{
		ChargeInhibitKey: {0x00, 0x00, 0x00, 0x00},
	})
	if err := c.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer c.Close()

	v, err := InhibitValue(ChargeInhibitKey, true)
	if err != nil {
		t.Fatalf("InhibitValue() error = %v", err)
	}
	if err := c.Write(ChargeInhibitKey, v); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := c.Read(ChargeInhibitKey)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !Inhibited(got.Bytes) {
		t.Errorf("expected inhibited after writing %x, got bytes %x", v, got.Bytes)
	}

	v, _ = InhibitValue(ChargeInhibitKey, false)
	if err := c.Write(ChargeInhibitKey, v); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err = c.Read(ChargeInhibitKey)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if Inhibited(got.Bytes) {
		t.Errorf("expected not inhibited after writing zeros, got bytes %x", got.Bytes)
	}
}
