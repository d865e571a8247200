// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ccs811prom polls a CCS811 gas sensor and exposes its readings to
// Prometheus.
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/ccs811"
)

// CLI args
var (
	listenAddr = flag.String("listen-address", ":8080", "The address to listen on for HTTP requests.")
	busName    = flag.String("bus", "", "I²C bus name, empty for the first available bus")
	devAddr    = flag.Uint("address", uint(ccs811.DefaultAddress), "I²C device address")
	pollPeriod = flag.Duration("poll-period", time.Second, "device sampling cadence: 1s, 10s or 1m")
	readInt    = flag.Duration("read-int", 10*time.Second, "time interval between sensor reads")
)

// metrics to expose to Prometheus
var (
	gaugeCo2Level = newGauge("air_co2_level", "Air equivalent Carbon Dioxide level (units: ppm)")
	gaugeVocLevel = newGauge("air_voc_level", "Air Volatile Organic Compounds level (units: ppb)")
	counterStale  = newCounter("ccs811_reads_stale_total", "Reads that returned no fresh sample")
	counterErrors = newCounter("ccs811_reads_failed_total", "Reads that failed or reported a device error")
)

func newGauge(name string, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name,
			Help: help,
		},
		[]string{"bus"},
	)
}

func newCounter(name string, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name,
			Help: help,
		},
		[]string{"bus"},
	)
}

func init() {
	prometheus.MustRegister(gaugeCo2Level)
	prometheus.MustRegister(gaugeVocLevel)
	prometheus.MustRegister(counterStale)
	prometheus.MustRegister(counterErrors)

	// Add Go module build info.
	prometheus.MustRegister(prometheus.NewBuildInfoCollector())

	// logging
	formatter := &log.TextFormatter{
		FullTimestamp: true,
	}
	log.SetFormatter(formatter)
}

func main() {
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatalf("failed to initialize periph: %s", err)
	}
	b, err := i2creg.Open(*busName)
	if err != nil {
		log.Fatalf("failed to open I²C bus: %s", err)
	}
	defer b.Close()

	dev, err := ccs811.NewI2C(b, &ccs811.Opts{
		Addr:       uint16(*devAddr),
		PollPeriod: *pollPeriod,
	})
	if err != nil {
		log.Fatalf("failed to initialize sensor: %s", err)
	}
	defer func() {
		if err := dev.Halt(); err != nil {
			log.Errorf("failed to halt sensor: %s", err)
		}
	}()
	log.Printf("Sensing: %s", dev)

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

	for {
		readAndPublish(dev, b)
		time.Sleep(*readInt)
	}
}

func readAndPublish(dev *ccs811.Dev, b i2c.Bus) {
	label := b.String()

	m := ccs811.Measurement{}
	if err := dev.Sense(&m); err != nil {
		log.Errorf("failed to read from sensor: %s", err)
		counterErrors.WithLabelValues(label).Inc()
		return
	}
	if m.Status.Error {
		log.Errorf("sensor reported an error: %+v", m.ErrorID)
		counterErrors.WithLabelValues(label).Inc()
		return
	}
	if !m.Status.DataReady {
		counterStale.WithLabelValues(label).Inc()
		return
	}

	log.Printf("Received: %s", m.String())
	gaugeCo2Level.WithLabelValues(label).Set(float64(m.ECO2))
	gaugeVocLevel.WithLabelValues(label).Set(float64(m.ETVOC))
}
