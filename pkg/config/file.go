package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/utils/ptr"
)

// Bounds enforced on stored values. The limit floor matches the lowest
// hardware charge cap the actuator's fallback can express.
const (
	MinChargeLimit = 20
	MaxChargeLimit = 100

	MinAutoPauseThreshold = 5
	MaxAutoPauseThreshold = 50

	MinMonitorIntervalSeconds = 5
	MaxMonitorIntervalSeconds = 60
)

var defaultFileConfig = &RawFileConfig{
	ChargeLimit: ptr.To(80),
	SailingMode: ptr.To(false),
	TravelMode:  ptr.To(false),
	// Auto-pause is a safety net, so it defaults on.
	AutoPauseLowBattery:    ptr.To(true),
	AutoPauseThreshold:     ptr.To(20),
	MonitorIntervalSeconds: ptr.To(10),
	SetupComplete:          ptr.To(false),
}

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = defaultFileConfig
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk representation. Every field is optional
// so an older config file keeps working after new fields are added;
// missing fields fall back to defaults.
type RawFileConfig struct {
	ChargeLimit            *int       `json:"chargeLimit,omitempty"`
	SailingMode            *bool      `json:"sailingMode,omitempty"`
	TravelMode             *bool      `json:"travelMode,omitempty"`
	TravelModeExpiry       *time.Time `json:"travelModeExpiry,omitempty"`
	SavedLimitBeforeTravel *int       `json:"savedLimitBeforeTravel,omitempty"`
	AutoPauseLowBattery    *bool      `json:"autoPauseLowBattery,omitempty"`
	AutoPauseThreshold     *int       `json:"autoPauseThreshold,omitempty"`
	MonitorIntervalSeconds *int       `json:"monitorIntervalSeconds,omitempty"`
	SetupComplete          *bool      `json:"setupComplete,omitempty"`
	TopUpSchedule          *string    `json:"topUpSchedule,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		ChargeLimit:            ptr.To(c.ChargeLimit()),
		SailingMode:            ptr.To(c.SailingMode()),
		TravelMode:             ptr.To(c.TravelMode()),
		AutoPauseLowBattery:    ptr.To(c.AutoPauseEnabled()),
		AutoPauseThreshold:     ptr.To(c.AutoPauseThreshold()),
		MonitorIntervalSeconds: ptr.To(c.MonitorIntervalSeconds()),
		SetupComplete:          ptr.To(c.SetupComplete()),
		TopUpSchedule:          ptr.To(c.TopUpSchedule()),
	}

	if expiry, ok := c.TravelModeExpiry(); ok {
		rawConfig.TravelModeExpiry = ptr.To(expiry)
	}
	if saved, ok := c.SavedLimitBeforeTravel(); ok {
		rawConfig.SavedLimitBeforeTravel = ptr.To(saved)
	}

	return rawConfig, nil
}

func (f *File) ChargeLimit() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.ChargeLimit != nil {
		return *f.c.ChargeLimit
	}
	return *defaultFileConfig.ChargeLimit
}

func (f *File) SailingMode() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SailingMode != nil {
		return *f.c.SailingMode
	}
	return *defaultFileConfig.SailingMode
}

func (f *File) TravelMode() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.TravelMode != nil {
		return *f.c.TravelMode
	}
	return *defaultFileConfig.TravelMode
}

func (f *File) TravelModeExpiry() (time.Time, bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.TravelModeExpiry != nil {
		return *f.c.TravelModeExpiry, true
	}
	return time.Time{}, false
}

func (f *File) SavedLimitBeforeTravel() (int, bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SavedLimitBeforeTravel != nil {
		return *f.c.SavedLimitBeforeTravel, true
	}
	return 0, false
}

func (f *File) AutoPauseEnabled() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AutoPauseLowBattery != nil {
		return *f.c.AutoPauseLowBattery
	}
	return *defaultFileConfig.AutoPauseLowBattery
}

func (f *File) AutoPauseThreshold() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AutoPauseThreshold != nil {
		return *f.c.AutoPauseThreshold
	}
	return *defaultFileConfig.AutoPauseThreshold
}

func (f *File) MonitorIntervalSeconds() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.MonitorIntervalSeconds != nil {
		return *f.c.MonitorIntervalSeconds
	}
	return *defaultFileConfig.MonitorIntervalSeconds
}

func (f *File) SetupComplete() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.SetupComplete != nil {
		return *f.c.SetupComplete
	}
	return *defaultFileConfig.SetupComplete
}

func (f *File) TopUpSchedule() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.TopUpSchedule != nil {
		return *f.c.TopUpSchedule
	}
	return ""
}

func (f *File) SetChargeLimit(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	i = clamp(i, MinChargeLimit, MaxChargeLimit)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ChargeLimit = &i
}

func (f *File) SetSailingMode(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SailingMode = &b
}

func (f *File) SetTravelMode(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TravelMode = &b
}

func (f *File) SetTravelModeExpiry(t time.Time) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TravelModeExpiry = &t
}

func (f *File) ClearTravelModeExpiry() {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TravelModeExpiry = nil
}

func (f *File) SetSavedLimitBeforeTravel(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SavedLimitBeforeTravel = &i
}

func (f *File) ClearSavedLimitBeforeTravel() {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SavedLimitBeforeTravel = nil
}

func (f *File) SetAutoPauseEnabled(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AutoPauseLowBattery = &b
}

func (f *File) SetAutoPauseThreshold(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	i = clamp(i, MinAutoPauseThreshold, MaxAutoPauseThreshold)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AutoPauseThreshold = &i
}

func (f *File) SetMonitorIntervalSeconds(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	i = clamp(i, MinMonitorIntervalSeconds, MaxMonitorIntervalSeconds)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.MonitorIntervalSeconds = &i
}

func (f *File) SetSetupComplete(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SetupComplete = &b
}

func (f *File) SetTopUpSchedule(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.TopUpSchedule = &s
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	fields := logrus.Fields{
		"chargeLimit":     f.ChargeLimit(),
		"sailingMode":     f.SailingMode(),
		"travelMode":      f.TravelMode(),
		"autoPause":       f.AutoPauseEnabled(),
		"autoPauseBelow":  f.AutoPauseThreshold(),
		"intervalSeconds": f.MonitorIntervalSeconds(),
		"setupComplete":   f.SetupComplete(),
	}
	if expiry, ok := f.TravelModeExpiry(); ok {
		fields["travelModeExpiry"] = expiry.Format(time.RFC3339)
	}
	return fields
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
