package battery

import (
	"math"
	"time"
)

// timeCalculating is the firmware sentinel for "estimate not ready yet".
// Without special-casing it, 65535 minutes would display as 1092 hours.
const timeCalculating = 65535

// levelPercent derives the charge percent from capacity readings,
// rounded and clamped to [0, 100].
func levelPercent(current, max int) int {
	if max <= 0 {
		return 0
	}
	level := int(math.Round(float64(current) / float64(max) * 100))
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// healthPercent is max capacity relative to design capacity. A zero
// design capacity means a new or unreadable battery; report full health
// rather than dividing by zero.
func healthPercent(max, design int) float64 {
	if design == 0 {
		return 100
	}
	return float64(max) / float64(design) * 100
}

// signExtend16 reinterprets a raw amperage register as a signed 16-bit
// value. The hardware reports current as unsigned, so a discharge of
// -551 mA arrives as 64985.
func signExtend16(raw int64) int {
	if raw > math.MaxInt16 && raw <= math.MaxUint16 {
		raw -= 1 << 16
	}
	return int(raw)
}

// decodeTimeRemaining converts a raw minutes reading, reporting the
// calculating sentinel as indeterminate.
func decodeTimeRemaining(raw int64) (minutes int, indeterminate bool) {
	if raw == timeCalculating || raw < 0 {
		return 0, true
	}
	return int(raw), false
}

// decodeManufactureDate unpacks the 16-bit manufacture date:
// bits [0:5) day, [5:9) month, [9:16) years since 1980. Values that do
// not fit 16 bits or decode to an impossible date yield the zero time.
func decodeManufactureDate(raw int64) time.Time {
	if raw <= 0 || raw > 0xFFFF {
		return time.Time{}
	}

	day := int(raw & 0x1F)
	month := int((raw >> 5) & 0xF)
	year := 1980 + int(raw>>9)

	if day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// deriveCondition maps raw health indicators onto the condition enum.
func deriveCondition(p ioregProperties, health float64) Condition {
	switch {
	case p.PermanentFailureStatus != 0:
		return ConditionServiceRecommended
	case p.DesignCapacity == 0:
		return ConditionUnknown
	case health >= 80:
		return ConditionNormal
	case health >= 60:
		return ConditionFair
	default:
		return ConditionPoor
	}
}
