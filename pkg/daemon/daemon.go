// Package daemon is the long-running process: it owns the policy
// controller, feeds it telemetry on a tick, and serves the control API
// over a unix socket. Everything privileged happens in the sudo helper;
// the daemon itself runs as the logged-in user.
package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/actuator"
	"github.com/sailmode/sail/pkg/battery"
	"github.com/sailmode/sail/pkg/config"
	"github.com/sailmode/sail/pkg/events"
	"github.com/sailmode/sail/pkg/metrics"
	"github.com/sailmode/sail/pkg/policy"
	"github.com/sailmode/sail/pkg/setup"
	"github.com/sailmode/sail/pkg/version"
)

var (
	conf     config.Config
	ctrl     *policy.Controller
	reader   battery.Reader
	hub      *events.EventHub
	sched    *TopUpScheduler
	setupMgr *setup.Setup

	metricsHandler http.Handler
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/limit", getLimit)
	router.PUT("/limit", setLimit)
	router.GET("/sailing", getSailing)
	router.PUT("/sailing", setSailing)
	router.PUT("/travel", setTravel)
	router.PUT("/auto-pause", setAutoPause)
	router.PUT("/interval", setInterval)
	router.GET("/status", getStatus)
	router.GET("/telemetry", getTelemetry)
	router.GET("/battery-info", getBatteryInfo)
	router.GET("/setup", getSetup)
	router.PUT("/setup", recordSetup)
	router.GET("/schedule", getSchedule)
	router.PUT("/schedule", setSchedule)
	router.DELETE("/schedule", deleteSchedule)
	router.POST("/schedule/skip", skipSchedule)
	router.POST("/schedule/postpone", postponeSchedule)
	router.GET("/events", getEvents)
	router.GET("/metrics", getMetrics)
	router.GET("/version", getVersion)

	return router
}

func Run(configPath string, unixSocketPath string) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	hub = events.NewEventHub()
	setupMgr = setup.New()
	reader = battery.NewIORegReader()

	act := actuator.New(
		actuator.NewSudoRunner(),
		func() bool { return conf.SetupComplete() && setupMgr.VerifyArtifacts() == nil },
		conf.ChargeLimit,
	)
	ctrl = policy.NewController(conf, act, setupMgr, hub)

	sched = NewTopUpScheduler(ctrl, hub)
	if spec := conf.TopUpSchedule(); spec != "" {
		if err := sched.Schedule(spec); err != nil {
			logrus.Errorf("ignoring invalid top-up schedule %q from config: %v", spec, err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.NewCollector(version.Version, ctrl.Status))
	actuations := metrics.NewActuationsCounter()
	reg.MustRegister(actuations)
	metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	// Count actuation results as they happen. The subscription ends
	// when the hub shuts down.
	go func() {
		for ev := range hub.Subscribe() {
			if ev.Name != events.ActuationDone {
				continue
			}
			res, err := events.DecodeAs[events.ActuationResultEvent](ev)
			if err != nil {
				continue
			}
			outcome := "ok"
			if !res.OK {
				outcome = "error"
			}
			actuations.WithLabelValues(outcome).Inc()
		}
	}()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := conf.Load(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.Infof("config reloaded")
			resyncSchedule()
			ctrl.Evaluate()
		}
	}()

	srv := &http.Server{
		Handler: router,
	}

	// A previous crash can leave the socket file behind, which would
	// fail the Listen with EADDRINUSE forever.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctrl.Start(context.Background())
	sched.Start()

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	go runTelemetryLoop(loopCtx)

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	cancelLoop()

	logrus.Info("stopping top-up scheduler")
	sched.Stop()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	// Last: hand the battery back to the firmware. A dead daemon must
	// not leave charging pinned at the limit.
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	ctrl.Shutdown(ctx)
	cancel()

	hub.Shutdown()

	logrus.Info("exiting")
	return nil
}

// resyncSchedule reapplies the persisted top-up schedule after a config
// reload.
func resyncSchedule() {
	spec := conf.TopUpSchedule()
	if spec == "" {
		sched.Clear()
		return
	}
	if err := sched.Schedule(spec); err != nil {
		logrus.Errorf("invalid top-up schedule %q after reload: %v", spec, err)
	}
}
