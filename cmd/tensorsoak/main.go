package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var (
	allocKind   = flag.String("alloc", "emulator", "Allocator to soak (host, emulator, pool, prealloc)")
	duration    = flag.Duration("duration", 10*time.Second, "How long to run (e.g. 10s, 20m)")
	workers     = flag.Int("workers", 4, "Number of concurrent workers")
	maxElems    = flag.Int("max-elems", 1<<16, "Upper bound on elements per tensor")
	images      = flag.Bool("images", true, "Exercise image-backed tensors when the allocator supports them")
	seed        = flag.Int64("seed", 1, "Random seed for tensor shapes")
	listenAddr  = flag.String("listen", "", "Address to serve /metrics on (e.g. :9102)")
	enableOTel  = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile  = flag.String("cpuprofile", "", "Write cpu profile to file")
	dumpPath    = flag.String("dump", "", "Write a CBOR snapshot of the last tensor of each worker to this file")
	arrowReport = flag.String("arrow-report", "", "Write per-worker results as an Arrow IPC stream to this file")
	pretty      = flag.Bool("pretty", true, "Human readable console logs")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	}

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *listenAddr != "" {
		go serveMetrics(*listenAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := Config{
		Alloc:    *allocKind,
		Duration: *duration,
		Workers:  *workers,
		MaxElems: *maxElems,
		Images:   *images,
		Seed:     *seed,
	}
	log.Info().
		Str("alloc", cfg.Alloc).
		Str("duration", cfg.Duration.String()).
		Int("workers", cfg.Workers).
		Msg("Starting tensor soak")

	res, err := Run(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Soak failed")
	}
	printReport(os.Stdout, res)

	if *dumpPath != "" {
		if err := writeFile(*dumpPath, res.writeSnapshots); err != nil {
			log.Warn().Err(err).Str("path", *dumpPath).Msg("Failed to write snapshot dump")
		}
	}
	if *arrowReport != "" {
		if err := writeFile(*arrowReport, res.writeArrow); err != nil {
			log.Warn().Err(err).Str("path", *arrowReport).Msg("Failed to write arrow report")
		}
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("tensorsoak"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
