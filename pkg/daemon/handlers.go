package daemon

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/distatus/battery"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/policy"
	"github.com/sailmode/sail/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getLimit(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.ChargeLimit())
}

func setLimit(c *gin.Context) {
	var l int
	if err := c.BindJSON(&l); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if l < config.MinChargeLimit || l > config.MaxChargeLimit {
		err := fmt.Errorf("limit must be between %d and %d, got %d", config.MinChargeLimit, config.MaxChargeLimit, l)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := ctrl.SetChargeLimit(l); err != nil {
		logrus.Errorf("setLimit failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set charge limit to %d", l)

	st := ctrl.Status()
	msg := fmt.Sprintf("set charge limit to %d%%", l)
	if st.TravelMode {
		msg = fmt.Sprintf("travel mode is active; %d%% will apply when it ends", l)
	} else if st.Telemetry != nil {
		msg = fmt.Sprintf("set charge limit to %d%%, current charge: %d%%", l, st.Telemetry.Level)
		if st.Telemetry.Level >= l {
			msg += ". Current charge is at or above the limit, so charging will stop and your computer will run from the wall."
		}
	}

	c.IndentedJSON(http.StatusCreated, msg)
}

func getSailing(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, conf.SailingMode())
}

func setSailing(c *gin.Context) {
	var enable bool
	if err := c.BindJSON(&enable); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := ctrl.SetSailingMode(enable); err != nil {
		logrus.Errorf("setSailing failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set sailing mode to %t", enable)

	msg := "ok"
	if st := ctrl.Status(); enable && st.State == policy.StateAwaitingSetup {
		msg = "sailing mode enabled, but one-time setup has not run yet. Run `sail setup` to complete it; until then charging is not controlled."
	}

	c.IndentedJSON(http.StatusCreated, msg)
}

type travelRequest struct {
	Enabled bool `json:"enabled"`
	// DurationSeconds picks how long the full-charge window stays
	// open. Zero keeps it open until an explicit disable.
	DurationSeconds int64 `json:"durationSeconds,omitempty"`
}

func setTravel(c *gin.Context) {
	var req travelRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if req.DurationSeconds < 0 {
		err := fmt.Errorf("duration must not be negative, got %ds", req.DurationSeconds)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	d := time.Duration(req.DurationSeconds) * time.Second
	if err := ctrl.SetTravelMode(req.Enabled, d); err != nil {
		logrus.Errorf("setTravel failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	msg := "travel mode disabled, previous charge limit restored"
	if req.Enabled {
		st := ctrl.Status()
		if st.TravelModeExpiry != nil {
			msg = fmt.Sprintf("travel mode enabled until %s (charge limit pinned at 100%%)", st.TravelModeExpiry.Format(time.RFC1123))
		} else {
			msg = "travel mode enabled (charge limit pinned at 100%)"
		}
	}

	c.IndentedJSON(http.StatusCreated, msg)
}

type autoPauseRequest struct {
	Enabled   bool `json:"enabled"`
	Threshold int  `json:"threshold,omitempty"`
}

func setAutoPause(c *gin.Context) {
	var req autoPauseRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = conf.AutoPauseThreshold()
	}
	if threshold < config.MinAutoPauseThreshold || threshold > config.MaxAutoPauseThreshold {
		err := fmt.Errorf("threshold must be between %d and %d, got %d",
			config.MinAutoPauseThreshold, config.MaxAutoPauseThreshold, threshold)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := ctrl.SetAutoPause(req.Enabled, threshold); err != nil {
		logrus.Errorf("setAutoPause failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set auto-pause to %t (threshold %d)", req.Enabled, threshold)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func setInterval(c *gin.Context) {
	var seconds int
	if err := c.BindJSON(&seconds); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if seconds < config.MinMonitorIntervalSeconds || seconds > config.MaxMonitorIntervalSeconds {
		err := fmt.Errorf("interval must be between %ds and %ds, got %ds",
			config.MinMonitorIntervalSeconds, config.MaxMonitorIntervalSeconds, seconds)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := ctrl.SetMonitorInterval(seconds); err != nil {
		logrus.Errorf("setInterval failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set monitor interval to %ds", seconds)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func getStatus(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, ctrl.Status())
}

func getTelemetry(c *gin.Context) {
	st := ctrl.Status()
	if st.Telemetry == nil {
		c.IndentedJSON(http.StatusServiceUnavailable, "no battery telemetry yet")
		return
	}
	c.IndentedJSON(http.StatusOK, st.Telemetry)
}

func getBatteryInfo(c *gin.Context) {
	batteries, err := battery.GetAll()
	if err != nil {
		logrus.Errorf("getBatteryInfo failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if len(batteries) == 0 {
		logrus.Errorf("no batteries found")
		c.IndentedJSON(http.StatusInternalServerError, "no batteries found")
		_ = c.AbortWithError(http.StatusInternalServerError, errors.New("no batteries found"))
		return
	}

	bat := batteries[0] // Apple laptops have exactly one battery.
	if bat.State == battery.Discharging {
		bat.ChargeRate = -bat.ChargeRate
	}

	c.IndentedJSON(http.StatusOK, bat)
}

type setupStatus struct {
	Complete   bool   `json:"complete"`
	Flagged    bool   `json:"flagged"`
	HelperPath string `json:"helperPath"`
	RulePath   string `json:"rulePath"`
	// Problem describes why setup is incomplete, empty when it is.
	Problem string `json:"problem,omitempty"`
}

func getSetup(c *gin.Context) {
	st := setupStatus{
		Flagged:    conf.SetupComplete(),
		HelperPath: setupMgr.HelperPath,
		RulePath:   setupMgr.RulePath,
	}
	err := setupMgr.VerifyArtifacts()
	st.Complete = st.Flagged && err == nil
	if err != nil {
		st.Problem = err.Error()
	} else if !st.Flagged {
		st.Problem = "setup has not been recorded"
	}
	c.IndentedJSON(http.StatusOK, st)
}

// recordSetup is called by the CLI after it performed the privileged
// installation as root. The daemon only flips the flag once the
// artifacts actually verify, otherwise the flag and the filesystem
// would disagree.
func recordSetup(c *gin.Context) {
	if err := setupMgr.VerifyArtifacts(); err != nil {
		logrus.Errorf("recordSetup called but artifacts do not verify: %v", err)
		c.IndentedJSON(http.StatusBadRequest, fmt.Sprintf("setup artifacts not found: %v. Run `sail setup` first.", err))
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := ctrl.MarkSetupComplete(); err != nil {
		logrus.Errorf("recordSetup failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Info("one-time setup recorded")

	c.IndentedJSON(http.StatusCreated, "ok")
}

type scheduleStatus struct {
	Spec    string     `json:"spec,omitempty"`
	NextRun *time.Time `json:"nextRun,omitempty"`
	Active  bool       `json:"active"`
}

func getSchedule(c *gin.Context) {
	spec, nextRun, active := sched.Status()
	st := scheduleStatus{Spec: spec, Active: active}
	if active && !nextRun.IsZero() {
		st.NextRun = &nextRun
	}
	c.IndentedJSON(http.StatusOK, st)
}

func setSchedule(c *gin.Context) {
	var spec string
	if err := c.BindJSON(&spec); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := sched.Schedule(spec); err != nil {
		err = fmt.Errorf("invalid cron expression %q: %v", spec, err)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := ctrl.SetTopUpSchedule(spec); err != nil {
		logrus.Errorf("setSchedule failed to persist: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	_, nextRun, _ := sched.Status()
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("top-up scheduled, next run %s", nextRun.Format(time.RFC1123)))
}

func deleteSchedule(c *gin.Context) {
	sched.Clear()
	if err := ctrl.SetTopUpSchedule(""); err != nil {
		logrus.Errorf("deleteSchedule failed to persist: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, "ok")
}

func skipSchedule(c *gin.Context) {
	if err := sched.Skip(); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	_, nextRun, _ := sched.Status()
	c.IndentedJSON(http.StatusOK, fmt.Sprintf("skipped, next run %s", nextRun.Format(time.RFC1123)))
}

func postponeSchedule(c *gin.Context) {
	var seconds int64
	if err := c.BindJSON(&seconds); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if err := sched.Postpone(time.Duration(seconds) * time.Second); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	_, nextRun, _ := sched.Status()
	c.IndentedJSON(http.StatusOK, fmt.Sprintf("postponed, next run %s", nextRun.Format(time.RFC1123)))
}

// getEvents streams the hub over SSE until the client hangs up or the
// hub shuts down.
func getEvents(c *gin.Context) {
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getMetrics(c *gin.Context) {
	metricsHandler.ServeHTTP(c.Writer, c.Request)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
