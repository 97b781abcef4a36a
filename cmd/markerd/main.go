// Command markerd runs the marker pose detector: it ingests marker frames
// over UDP or serial, aggregates them into stable poses, logs the poses to
// SQLite and serves the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/markerpose/internal/api"
	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/db"
	"github.com/banshee-data/markerpose/internal/detector"
	"github.com/banshee-data/markerpose/internal/httputil"
	"github.com/banshee-data/markerpose/internal/ingest"
	"github.com/banshee-data/markerpose/internal/markers"
	"github.com/banshee-data/markerpose/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to tuning config JSON (defaults built in)")
	dbPath      = flag.String("db", "markers.db", "Pose log database path (empty disables the log)")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	udpAddr     = flag.String("udp-addr", "", "UDP address to receive marker frames on, e.g. :7400")
	udpRcvBuf   = flag.Int("udp-rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	serialPort  = flag.String("serial-port", "", "Serial device of the vision module, e.g. /dev/ttyACM0")
	serialBaud  = flag.Int("serial-baud", 115200, "Serial baud rate")
	behavior    = flag.String("behavior", "", "Override marker position behavior (moving|stationary)")
	autostart   = flag.Bool("autostart", false, "Start a detection session immediately")
	webhookURL  = flag.String("webhook", "", "POST finalized updates to this URL")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadTuning() (*config.TuningConfig, error) {
	tuning := config.DefaultTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			return nil, err
		}
		tuning.Merge(loaded)
	}
	if *behavior != "" {
		b, err := markers.ParseBehavior(*behavior)
		if err != nil {
			return nil, err
		}
		s := string(b)
		tuning.Merge(&config.TuningConfig{MarkerPositionBehavior: &s})
	}
	return tuning, tuning.Validate()
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("markerd", version.String())
		return
	}

	tuning, err := loadTuning()
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}

	det, err := detector.New(detector.Options{Tuning: tuning})
	if err != nil {
		log.Fatalf("failed to create detector: %v", err)
	}
	defer det.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := func(f ingest.Frame) { det.Submit(f.Markers) }
	subscriberBuffer := tuning.GetSubscriberBuffer()
	var wg sync.WaitGroup

	var (
		database *db.DB
		recorder *db.Recorder
	)
	if *dbPath != "" {
		database, err = db.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open pose log: %v", err)
		}
		defer database.Close()
		recorder = db.NewRecorder(database)

		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.Attach(ctx, det, subscriberBuffer)
			log.Print("recorder routine terminated")
		}()
	}

	if *serialPort != "" {
		src, err := ingest.OpenSerial(*serialPort, ingest.PortOptions{BaudRate: *serialBaud})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		defer src.Close()
		if err := det.SetSizeSetter(src); err != nil {
			log.Printf("failed to push marker size to %s: %v", *serialPort, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := src.Run(ctx, sink); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial ingest stopped: %v", err)
			}
			log.Print("serial routine terminated")
		}()
	}

	if *udpAddr != "" {
		listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
			Address: *udpAddr,
			RcvBuf:  *udpRcvBuf,
			Sink:    sink,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil {
				log.Printf("udp ingest stopped: %v", err)
			}
			log.Printf("udp routine terminated: %+v", listener.Stats())
		}()
	}

	if *webhookURL != "" {
		hook := &detector.Webhook{
			URL:    *webhookURL,
			Client: httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second}),
		}
		id, updates := det.Subscribe(subscriberBuffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer det.Unsubscribe(id)
			hook.Run(ctx, updates)
		}()
	}

	if *autostart {
		if id, ok := det.StartDetecting(); ok {
			log.Printf("detection session %s started (%s)", id, det.MarkerPositionBehavior())
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux, err := api.NewServer(det, database, recorder).ServeMux()
		if err != nil {
			log.Fatalf("failed to build API routes: %v", err)
		}
		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Printf("markerd %s listening on %s", version.Version, *listen)

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
