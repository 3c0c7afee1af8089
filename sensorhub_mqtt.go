package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/host/v3"

	"github.com/edgehub/sensorhub/hub"
	"github.com/edgehub/sensorhub/hub/led"
	hubmqtt "github.com/edgehub/sensorhub/hub/mqtt"
	"github.com/edgehub/sensorhub/hub/netlink"
	"github.com/edgehub/sensorhub/hub/readers"
)

// CLI args
var (
	configPath   = flag.String("config", "sensorhub.json", "path to the sensor hub config file")
	listenAddr   = flag.String("listen-address", ":8080", "The address to listen on for HTTP requests.")
	readInterval = flag.Duration("read-int", 0, "time interval between sensor read cycles (overrides config)")
	ledPin       = flag.String("led-pin", "", "gpio pin of the status led (empty disables it)")
)

// metrics to expose to Prometheus
var (
	gaugeSensorValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sensor_value",
			Help: "Last value read from a sensor",
		},
		[]string{"sensor_id", "location", "sensor_type", "unit"},
	)
	counterCycles          = newCounter("sensor_cycles_total", "Completed read/publish cycles")
	counterPublished       = newCounter("sensor_readings_published_total", "Readings accepted by the broker")
	counterPublishFailures = newCounter("sensor_publish_failures_total", "Batches dropped because publishing failed")
	counterLinkReconnects  = newCounter("sensor_link_reconnects_total", "Link reconnect attempts")
)

func newCounter(name string, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: name,
		Help: help,
	})
}

func init() {
	prometheus.MustRegister(gaugeSensorValue)
	prometheus.MustRegister(counterCycles)
	prometheus.MustRegister(counterPublished)
	prometheus.MustRegister(counterPublishFailures)
	prometheus.MustRegister(counterLinkReconnects)

	// Add Go module build info.
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())

	//logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	flag.Parse()

	cfg, err := hub.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %s", err)
	}

	if _, err := host.Init(); err != nil {
		log.Fatalf("failed to init gpio/i2c host: %s", err)
	}

	go func() {
		// Expose the registered metrics via HTTP.
		http.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{
				// Opt into OpenMetrics to support exemplars.
				EnableOpenMetrics: true,
			},
		))
		log.Panic(http.ListenAndServe(*listenAddr, nil))
	}()

	dispatch := hub.NewDispatch()
	readers.RegisterDefaults(dispatch)

	var statusLED *led.LED
	if *ledPin != "" {
		statusLED, err = led.Open(*ledPin)
		if err != nil {
			log.Warnf("status led disabled: %s", err)
		}
	}

	prober := &netlink.DialProber{Addr: cfg.Link.ProbeAddr, Interface: cfg.Link.Interface}
	link := hub.NewLinkManager(prober, cfg.LinkConfig())
	link.OnStateChange(func(s hub.LinkState) {
		if s == hub.LinkConnecting {
			counterLinkReconnects.Inc()
		}
		if statusLED != nil {
			statusLED.Set(s == hub.LinkConnected)
		}
	})

	session := hubmqtt.NewSession(hubmqtt.Options{
		Addr:     cfg.Broker.Addr,
		ClientID: cfg.Broker.ClientID,
		Username: cfg.Broker.Username,
		Password: cfg.Broker.Password,
	})
	channel := hub.NewPublishChannel(session, cfg.PublishConfig())
	defer channel.Close()

	interval := cfg.Interval()
	if *readInterval > 0 {
		interval = *readInterval
	}

	sched := hub.NewScheduler(cfg.Registry, dispatch, link, channel, interval)
	sched.OnCycle(func(batch []hub.Reading, res hub.PublishResult) {
		counterCycles.Inc()
		counterPublished.Add(float64(res.Published))
		if res.Err != nil {
			counterPublishFailures.Inc()
		}
		for _, r := range batch {
			gaugeSensorValue.WithLabelValues(r.SensorID, r.Location, r.SensorType, r.Unit).Set(r.Value)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("sensor hub starting with %d configured sensors", cfg.Registry.Len())
	if err := sched.Run(ctx); err != nil {
		log.Infof("sensor loop stopped: %s", err)
	}
}
