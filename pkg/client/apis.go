package client

import (
	"encoding/json"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/sailmode/sail/pkg/battery"
	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/policy"
)

func (c *Client) GetLimit() (int, error) {
	ret, err := c.Get("/limit")
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to get charge limit")
	}
	limit, err := strconv.Atoi(ret)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to unmarshal charge limit")
	}
	return limit, nil
}

func (c *Client) SetLimit(l int) (string, error) {
	return c.Put("/limit", strconv.Itoa(l))
}

func (c *Client) GetSailing() (bool, error) {
	ret, err := c.Get("/sailing")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to get sailing mode")
	}
	return parseBoolResponse(ret)
}

func (c *Client) SetSailing(enabled bool) (string, error) {
	return c.Put("/sailing", strconv.FormatBool(enabled))
}

type travelRequest struct {
	Enabled         bool  `json:"enabled"`
	DurationSeconds int64 `json:"durationSeconds,omitempty"`
}

func (c *Client) SetTravel(enabled bool, duration time.Duration) (string, error) {
	payload, err := json.Marshal(travelRequest{
		Enabled:         enabled,
		DurationSeconds: int64(duration / time.Second),
	})
	if err != nil {
		return "", err
	}
	return c.Put("/travel", string(payload))
}

type autoPauseRequest struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold,omitempty"`
}

func (c *Client) SetAutoPause(enabled bool, threshold int) (string, error) {
	payload, err := json.Marshal(autoPauseRequest{Enabled: enabled, Threshold: threshold})
	if err != nil {
		return "", err
	}
	return c.Put("/auto-pause", string(payload))
}

func (c *Client) SetInterval(seconds int) (string, error) {
	return c.Put("/interval", strconv.Itoa(seconds))
}

func (c *Client) GetStatus() (*policy.Status, error) {
	ret, err := c.Get("/status")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get status")
	}

	var st policy.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal status")
	}
	return &st, nil
}

func (c *Client) GetTelemetry() (*battery.Snapshot, error) {
	ret, err := c.Get("/telemetry")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get telemetry")
	}

	var snap battery.Snapshot
	if err := json.Unmarshal([]byte(ret), &snap); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal telemetry")
	}
	return &snap, nil
}

// BatteryState mirrors the numeric charge state served by
// /battery-info.
type BatteryState int

const (
	BatteryUnknown BatteryState = iota
	BatteryEmpty
	BatteryFull
	BatteryCharging
	BatteryDischarging
)

func (s BatteryState) String() string {
	switch s {
	case BatteryEmpty:
		return "Empty"
	case BatteryFull:
		return "Full"
	case BatteryCharging:
		return "Charging"
	case BatteryDischarging:
		return "Discharging"
	default:
		return "Unknown"
	}
}

// BatteryInfo is the client-side shape of /battery-info. Units follow
// the daemon: capacities in mWh, charge rate in mW, voltages in volts.
type BatteryInfo struct {
	State         BatteryState `json:"State"`
	Current       float64      `json:"Current"`
	Full          float64      `json:"Full"`
	Design        float64      `json:"Design"`
	ChargeRate    float64      `json:"ChargeRate"`
	Voltage       float64      `json:"Voltage"`
	DesignVoltage float64      `json:"DesignVoltage"`
}

func (c *Client) GetBatteryInfo() (*BatteryInfo, error) {
	ret, err := c.Get("/battery-info")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get battery info")
	}

	var bat BatteryInfo
	if err := json.Unmarshal([]byte(ret), &bat); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal battery info")
	}
	return &bat, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}
	return &conf, nil
}

// SetupStatus is the client-side shape of /setup.
type SetupStatus struct {
	Complete   bool   `json:"complete"`
	Flagged    bool   `json:"flagged"`
	HelperPath string `json:"helperPath"`
	RulePath   string `json:"rulePath"`
	Problem    string `json:"problem,omitempty"`
}

func (c *Client) GetSetup() (*SetupStatus, error) {
	ret, err := c.Get("/setup")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get setup status")
	}

	var st SetupStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal setup status")
	}
	return &st, nil
}

// RecordSetup tells the daemon the privileged artifacts are installed
// so it can flip the persisted flag and start actuating.
func (c *Client) RecordSetup() (string, error) {
	return c.Put("/setup", "")
}

// ScheduleStatus is the client-side shape of /schedule.
type ScheduleStatus struct {
	Spec    string     `json:"spec,omitempty"`
	NextRun *time.Time `json:"nextRun,omitempty"`
	Active  bool       `json:"active"`
}

func (c *Client) GetSchedule() (*ScheduleStatus, error) {
	ret, err := c.Get("/schedule")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get top-up schedule")
	}

	var st ScheduleStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal top-up schedule")
	}
	return &st, nil
}

func (c *Client) SetSchedule(spec string) (string, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	return c.Put("/schedule", string(payload))
}

func (c *Client) DeleteSchedule() (string, error) {
	return c.Delete("/schedule")
}

func (c *Client) SkipSchedule() (string, error) {
	return c.Post("/schedule/skip", "")
}

func (c *Client) PostponeSchedule(d time.Duration) (string, error) {
	return c.Post("/schedule/postpone", strconv.FormatInt(int64(d/time.Second), 10))
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	// Remove "" around JSON string. I don't want to use a JSON decoder just for this.
	ret = ret[1 : len(ret)-1] // remove the surrounding quotes
	return ret, nil
}

func parseBoolResponse(resp string) (bool, error) {
	switch resp {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, pkgerrors.Errorf("unexpected response: %s", resp)
	}
}
