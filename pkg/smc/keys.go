package smc

import "fmt"

// SMC keys involved in charge-inhibit control. CHTE is honored by newer
// machine generations, CH0B/CH0I by older ones, and BCLM is the firmware
// charge-limit cap used as a last-resort fallback. Not every machine has
// every key, which is why the actuator tries all of them.
const (
	ChargeInhibitKey  = "CHTE"
	LegacyChargingKey = "CH0B"
	LegacyAdapterKey  = "CH0I"
	ChargeLimitKey    = "BCLM"
)

// InhibitValue returns the byte sequence that must be written to key to
// inhibit (or allow) charging. BCLM is not handled here because its write
// value depends on the configured limit, not a fixed constant.
func InhibitValue(key string, inhibit bool) ([]byte, error) {
	switch key {
	case ChargeInhibitKey:
		if inhibit {
			return []byte{0x01, 0x00, 0x00, 0x00}, nil
		}
		return []byte{0x00, 0x00, 0x00, 0x00}, nil
	case LegacyChargingKey:
		if inhibit {
			return []byte{0x02}, nil
		}
		return []byte{0x00}, nil
	case LegacyAdapterKey:
		if inhibit {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil
	}
	return nil, fmt.Errorf("no inhibit value for key %q", key)
}

// LimitValue returns the BCLM write value for a charge-limit percent.
func LimitValue(percent int) []byte {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return []byte{byte(percent)}
}

// Inhibited reports whether a value read from an inhibit key indicates
// that charging is currently inhibited. A zero-length read is treated as
// not inhibited.
func Inhibited(value []byte) bool {
	for _, b := range value {
		if b != 0 {
			return true
		}
	}
	return false
}
