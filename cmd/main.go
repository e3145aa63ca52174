package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/automatedhome/freezer/pkg/alert"
	"github.com/automatedhome/freezer/pkg/bus"
	"github.com/automatedhome/freezer/pkg/config"
	"github.com/automatedhome/freezer/pkg/display"
	"github.com/automatedhome/freezer/pkg/heater"
	"github.com/automatedhome/freezer/pkg/metrics"
	"github.com/automatedhome/freezer/pkg/notify"
	"github.com/automatedhome/freezer/pkg/registry"
	"github.com/automatedhome/freezer/pkg/sensor"
	"github.com/automatedhome/freezer/pkg/telemetry"
)

type Status struct {
	Mode  string `json:"mode"`
	Since int64  `json:"since"`
}

type sensorState struct {
	Name      string   `json:"name"`
	Timestamp string   `json:"timestamp"`
	Temp      *float64 `json:"temp"`
	RH        *float64 `json:"rh"`
}

var (
	statusMu     sync.Mutex
	systemStatus Status
)

func setStatus(s string) {
	statusMu.Lock()
	defer statusMu.Unlock()
	systemStatus.Mode = s
	systemStatus.Since = time.Now().Unix()
}

func httpStatus(w http.ResponseWriter, r *http.Request) {
	statusMu.Lock()
	s := systemStatus
	statusMu.Unlock()

	js, err := json.Marshal(s)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(js); err != nil {
		log.Println(err)
	}
}

func httpHealthCheck(fleet *registry.Registry, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fleet.LastPass().Add(timeout).After(time.Now()) {
			w.WriteHeader(200)
		} else {
			w.WriteHeader(500)
		}
	}
}

func httpSensors(fleet *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := make(map[string]sensorState)
		for _, s := range fleet.Active() {
			reading := s.Latest()
			out[s.Key()] = sensorState{
				Name:      s.Name(),
				Timestamp: reading.Time.Format(time.RFC3339Nano),
				Temp:      finite(reading.Temperature),
				RH:        finite(reading.Humidity),
			}
		}
		js, err := json.Marshal(out)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(js); err != nil {
			log.Println(err)
		}
	}
}

// finite maps NaN to nil so failed readings encode as JSON null.
func finite(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// parseThreshold accepts "none" (no threshold) or a decimal number.
func parseThreshold(s string) (*float64, error) {
	if strings.EqualFold(s, "none") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type overrides struct {
	dataDir  string
	interval float64
	maxThres *float64
	minThres *float64
}

// apply layers the command line over the settings file. Flags act as
// fleet-wide defaults; per-sensor settings still win.
func (o overrides) apply(s *config.Settings) *config.Settings {
	if o.dataDir != "" {
		s.DataDir = o.dataDir
	}
	if o.interval > 0 {
		s.Interval = o.interval
	}
	for key, ss := range s.Sensors {
		if ss.MaxThres == nil && o.maxThres != nil {
			ss.MaxThres = o.maxThres
		}
		if ss.MinThres == nil && o.minThres != nil {
			ss.MinThres = o.minThres
		}
		s.Sensors[key] = ss
	}
	return s
}

// simulatedBus builds the in-process bus used when no hardware binding
// is compiled in: one device per configured sensor key.
func simulatedBus(settings *config.Settings) *bus.Sim {
	sim := bus.NewSim()
	for key := range settings.Sensors {
		channel, stype, err := sensor.ParseKey(key)
		if err != nil {
			continue
		}
		addr, ok := sensor.KindAddress(stype)
		if !ok {
			continue
		}
		sim.Attach(channel, addr, -18.0)
	}
	return sim
}

func main() {
	configFile := flag.String("config", "/etc/freezer/settings.yaml", "Settings file with sensor definitions and alert thresholds")
	dataDir := flag.String("data-dir", "", "Directory for CSV data logs (overrides settings file)")
	interval := flag.Float64("interval", 0, "Default poll interval in seconds (overrides settings file)")
	maxThresArg := flag.String("max-thres", "none", "Default max temperature threshold ('none' or a number)")
	minThresArg := flag.String("min-thres", "none", "Default min temperature threshold ('none' or a number)")
	noSocket := flag.Bool("no-socket", false, "Disable the telemetry socket push")
	flag.Parse()

	maxThres, err := parseThreshold(*maxThresArg)
	if err != nil {
		log.Fatalf("Invalid -max-thres value %q: %v", *maxThresArg, err)
	}
	minThres, err := parseThreshold(*minThresArg)
	if err != nil {
		log.Fatalf("Invalid -min-thres value %q: %v", *minThresArg, err)
	}
	over := overrides{
		dataDir:  *dataDir,
		interval: *interval,
		maxThres: maxThres,
		minThres: minThres,
	}

	settings, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}
	settings = over.apply(settings)
	if settings.DataDir == "" {
		settings.DataDir = "."
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setStatus("startup")

	reg := prometheus.NewRegistry()
	mets := metrics.New(reg)

	var notifier alert.Notifier
	if settings.SendFrom != nil && len(settings.SendTo) > 0 {
		notifier = notify.NewSMTP(
			settings.SendFrom.Server,
			settings.SendFrom.Port,
			settings.SendFrom.User,
			settings.SendFrom.Pass,
			settings.SendTo,
		)
	} else {
		log.Println("No email account configured, alerting is disabled")
	}
	alerts := alert.NewDispatcher(notifier, mets)

	var sinks telemetry.Fanout
	if settings.Socket != "" && !*noSocket {
		sock := telemetry.NewSocket(settings.Socket)
		go sock.Run(ctx)
		sinks = append(sinks, sock)
	}
	if settings.Broker != "" {
		topic := settings.Topic
		if topic == "" {
			topic = "freezer"
		}
		sinks = append(sinks, telemetry.NewMQTT("freezer-monitor", settings.Broker, topic))
	}

	sim := simulatedBus(settings)
	log.Println("No hardware binding compiled in, running against the simulated bus")

	fleet := registry.New(registry.Options{
		ScanGate: bus.NewGate(),
		Scanner:  bus.NewSerialScanner(sim),
		Opener:   sim,
		Deps: sensor.Deps{
			Gate:       bus.NewGate(),
			Heater:     heater.New(),
			Alerts:     alerts,
			Publisher:  sinks,
			Metrics:    mets,
			DataDir:    settings.DataDir,
			BackupDays: settings.BackupDays,
		},
		Load: func() (*config.Settings, error) {
			s, err := config.Load(*configFile)
			if err != nil {
				return nil, err
			}
			return over.apply(s), nil
		},
		Period: time.Duration(settings.Rescan * float64(time.Second)),
	})

	rescanPeriod := time.Duration(settings.Rescan * float64(time.Second))
	go func() {
		promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		// Expose metrics
		http.Handle("/metrics", promHandler)
		// Report current status
		http.HandleFunc("/status", httpStatus)
		// Expose current sensors data
		http.HandleFunc("/sensors", httpSensors(fleet))
		// Expose healthcheck
		http.HandleFunc("/health", httpHealthCheck(fleet, rescanPeriod+time.Minute))
		err := http.ListenAndServe(":7001", nil)
		if err != nil {
			panic("HTTP Server for metrics exposition failed: " + err.Error())
		}
	}()

	fleet.Start(ctx)
	setStatus("running")

	cycler := display.NewCycler(display.LogScreen{}, fleet, 0, 0)
	go cycler.Run(ctx)

	<-ctx.Done()
	log.Println("Shutdown signal received, stopping all sensors")
	setStatus("shutdown")
	fleet.Close()
	log.Println("All sensors stopped, exiting")
}
