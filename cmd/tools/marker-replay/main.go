// Command marker-replay runs recorded marker frames through the aggregator
// offline and prints every finalized pose set as a JSON line in the frame
// wire format.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/ingest"
	"github.com/banshee-data/markerpose/internal/markers"
	"github.com/banshee-data/markerpose/internal/monitor"
)

// Config holds the replay options.
type Config struct {
	TuningFile string
	Input      string
	UDPPort    int
	Behavior   string
	PlotFile   string
	Debug      bool
	// MarkerIDs turns on the trace stream and limits per-marker
	// diagnostics to these ids.
	MarkerIDs []int
}

// Summary reports what a replay consumed and produced.
type Summary struct {
	Input       string                  `json:"input"`
	Frames      int                     `json:"frames"`
	Emitted     int                     `json:"emitted_cycles"`
	Poses       int                     `json:"poses"`
	PCAP        *ingest.PCAPStats       `json:"pcap,omitempty"`
	Aggregator  markers.AggregatorStats `json:"aggregator"`
	PlotWritten string                  `json:"plot,omitempty"`
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.TuningFile, "config", "", "Path to tuning config JSON (defaults built in)")
	flag.StringVar(&cfg.Input, "input", "", "Frames to replay: a .pcap capture or newline-delimited JSON")
	flag.IntVar(&cfg.UDPPort, "udp-port", 7400, "UDP destination port of marker frames in a capture")
	flag.StringVar(&cfg.Behavior, "behavior", "", "Override marker position behavior (moving|stationary)")
	flag.StringVar(&cfg.PlotFile, "plot", "", "Write a top-down plot of finalized poses to this PNG")
	flag.BoolVar(&cfg.Debug, "debug", false, "Log per-evaluation diagnostics to stderr")
	markerIDs := flag.String("marker-ids", "", "Comma-separated marker ids to trace, e.g. 3,7 (implies -debug)")
	flag.Parse()

	ids, err := parseMarkerIDs(*markerIDs)
	if err != nil {
		log.Fatalf("invalid -marker-ids: %v", err)
	}
	cfg.MarkerIDs = ids

	if cfg.Input == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	summary, err := replay(ctx, cfg, out)
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	data, _ := json.Marshal(summary)
	log.Printf("summary: %s", data)
}

func loadDetectionConfig(cfg Config) (markers.DetectionConfig, error) {
	tuning := config.DefaultTuningConfig()
	if cfg.TuningFile != "" {
		loaded, err := config.LoadTuningConfig(cfg.TuningFile)
		if err != nil {
			return markers.DetectionConfig{}, err
		}
		tuning.Merge(loaded)
	}
	dc := markers.DetectionConfigFromTuning(tuning)
	if cfg.Behavior != "" {
		b, err := markers.ParseBehavior(cfg.Behavior)
		if err != nil {
			return markers.DetectionConfig{}, err
		}
		dc.Behavior = b
	}
	return dc, dc.Validate()
}

func parseMarkerIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, f := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// replay feeds every frame in cfg.Input to a fresh aggregator in file
// order and writes each non-empty result to out.
func replay(ctx context.Context, cfg Config, out io.Writer) (Summary, error) {
	summary := Summary{Input: cfg.Input}

	dc, err := loadDetectionConfig(cfg)
	if err != nil {
		return summary, fmt.Errorf("load config: %w", err)
	}
	logs := markers.LogWriters{Ops: os.Stderr, MarkerIDs: cfg.MarkerIDs}
	if cfg.Debug || len(cfg.MarkerIDs) > 0 {
		logs.Diag = os.Stderr
	}
	if len(cfg.MarkerIDs) > 0 {
		logs.Trace = os.Stderr
	}
	markers.SetLogWriters(logs)

	agg, err := markers.NewAggregator(dc)
	if err != nil {
		return summary, err
	}
	agg.Start()

	var (
		finalized []markers.Marker
		writeErr  error
	)
	sink := func(f ingest.Frame) {
		summary.Frames++
		completed := agg.ProcessFrame(f.Markers)
		if len(completed) == 0 || writeErr != nil {
			return
		}
		line, err := ingest.EncodeFrame(ingest.Frame{Timestamp: f.Timestamp, Markers: completed})
		if err != nil {
			writeErr = err
			return
		}
		if _, err := fmt.Fprintf(out, "%s\n", line); err != nil {
			writeErr = err
			return
		}
		summary.Emitted++
		summary.Poses += len(completed)
		for _, m := range completed {
			finalized = append(finalized, m)
		}
	}

	switch strings.ToLower(filepath.Ext(cfg.Input)) {
	case ".pcap":
		stats, err := ingest.ReadPCAPFile(ctx, cfg.Input, cfg.UDPPort, sink)
		summary.PCAP = &stats
		if err != nil {
			return summary, err
		}
	default:
		f, err := os.Open(cfg.Input)
		if err != nil {
			return summary, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		if _, err := ingest.ReadFrames(ctx, f, sink); err != nil {
			return summary, err
		}
	}
	if writeErr != nil {
		return summary, fmt.Errorf("write output: %w", writeErr)
	}
	summary.Aggregator = agg.Stats()

	if cfg.PlotFile != "" && len(finalized) > 0 {
		title := fmt.Sprintf("%s (%s)", filepath.Base(cfg.Input), dc.Behavior)
		if err := monitor.SavePosePlot(cfg.PlotFile, title, finalized); err != nil {
			return summary, err
		}
		summary.PlotWritten = cfg.PlotFile
	}
	return summary, nil
}
