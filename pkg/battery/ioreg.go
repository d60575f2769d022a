package battery

import (
	"context"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"howett.net/plist"
)

// ioregTimeout bounds a single registry query. The power service answers
// in milliseconds when healthy; anything longer means it is wedged.
const ioregTimeout = 10 * time.Second

// runIOReg queries the smart battery entry of the device registry and
// returns its properties as an XML property list. Variable so tests can
// substitute canned output.
var runIOReg = func(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "ioreg", "-rn", "AppleSmartBattery", "-a", "-w0").Output()
}

// ioregProperties mirrors the registry keys we consume. Raw integer
// fields keep the hardware encoding; decoding happens in snapshot().
type ioregProperties struct {
	CurrentCapacity         int64 `plist:"CurrentCapacity"`
	MaxCapacity             int64 `plist:"MaxCapacity"`
	AppleRawCurrentCapacity int64 `plist:"AppleRawCurrentCapacity"`
	AppleRawMaxCapacity     int64 `plist:"AppleRawMaxCapacity"`
	DesignCapacity          int64 `plist:"DesignCapacity"`
	CycleCount              int64 `plist:"CycleCount"`
	Temperature             int64 `plist:"Temperature"`
	Voltage                 int64 `plist:"Voltage"`
	Amperage                int64 `plist:"Amperage"`
	ExternalConnected       bool  `plist:"ExternalConnected"`
	IsCharging              bool  `plist:"IsCharging"`
	FullyCharged            bool  `plist:"FullyCharged"`
	AvgTimeToEmpty          int64 `plist:"AvgTimeToEmpty"`
	AvgTimeToFull           int64 `plist:"AvgTimeToFull"`
	ManufactureDate         int64 `plist:"ManufactureDate"`
	PermanentFailureStatus  int64 `plist:"PermanentFailureStatus"`
	AdapterDetails          struct {
		Watts int64 `plist:"Watts"`
	} `plist:"AdapterDetails"`
}

// IORegReader reads telemetry from the device registry. The zero value
// is ready to use.
type IORegReader struct{}

var _ Reader = (*IORegReader)(nil)

// NewIORegReader returns a Reader backed by the device registry.
func NewIORegReader() *IORegReader {
	return &IORegReader{}
}

// Read queries the battery service and decodes a fresh snapshot.
func (r *IORegReader) Read(ctx context.Context) (*Snapshot, error) {
	logrus.Trace("Trying to read battery telemetry")

	ctx, cancel := context.WithTimeout(ctx, ioregTimeout)
	defer cancel()

	out, err := runIOReg(ctx)
	if err != nil {
		logrus.WithError(err).Trace("Battery registry query failed")
		return nil, errors.Wrapf(ErrServiceUnavailable, "querying device registry: %v", err)
	}

	s, err := decodeSnapshot(out)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"level":      s.Level,
		"charging":   s.IsCharging,
		"pluggedIn":  s.IsPluggedIn,
		"cycleCount": s.CycleCount,
	}).Trace("Battery telemetry read")

	return s, nil
}

// decodeSnapshot parses the registry plist and normalizes it. The plist
// is an array of entries; a machine has exactly one smart battery, so
// only the first entry is used.
func decodeSnapshot(out []byte) (*Snapshot, error) {
	var props []ioregProperties
	if _, err := plist.Unmarshal(out, &props); err != nil {
		return nil, errors.Wrap(err, "decoding battery registry plist")
	}
	if len(props) == 0 {
		return nil, errors.Wrap(ErrServiceUnavailable, "no battery entry in device registry")
	}

	p := props[0]

	// Newer machines report CurrentCapacity/MaxCapacity as a percent and
	// keep the real mAh readings in the AppleRaw keys. Prefer the raw
	// pair whenever it is present.
	current, max := p.CurrentCapacity, p.MaxCapacity
	if p.AppleRawMaxCapacity > 0 {
		current, max = p.AppleRawCurrentCapacity, p.AppleRawMaxCapacity
	}

	health := healthPercent(int(max), int(p.DesignCapacity))

	timeRaw := p.AvgTimeToEmpty
	if p.IsCharging {
		timeRaw = p.AvgTimeToFull
	}
	timeMin, indeterminate := decodeTimeRemaining(timeRaw)

	return &Snapshot{
		Level:             levelPercent(int(current), int(max)),
		IsCharging:        p.IsCharging,
		IsPluggedIn:       p.ExternalConnected,
		FullyCharged:      p.FullyCharged,
		TemperatureC:      float64(p.Temperature) / 100,
		CycleCount:        int(p.CycleCount),
		CurrentCapacity:   int(current),
		MaxCapacity:       int(max),
		DesignCapacity:    int(p.DesignCapacity),
		Amperage:          signExtend16(p.Amperage),
		Voltage:           float64(p.Voltage) / 1000,
		AdapterWattage:    int(p.AdapterDetails.Watts),
		HealthPercent:     health,
		Condition:         deriveCondition(p, health),
		TimeRemainingMin:  timeMin,
		TimeIndeterminate: indeterminate,
		ManufactureDate:   decodeManufactureDate(p.ManufactureDate),
		ReadAt:            time.Now(),
	}, nil
}
