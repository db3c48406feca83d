package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fjlanasa/aspace-sync/cli"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := &cli.RootOptions{}
	logUrl := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if logUrl != "" {
		resource := resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("aspace-sync"),
			semconv.ServiceVersionKey.String("v0.1.0"),
		)
		logExporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpoint(logUrl),
			otlploghttp.WithInsecure(),
		)
		if err != nil {
			slog.Error("failed to initialize exporter", "error", err)
			return cli.ExitFailure
		}
		lp := log.NewLoggerProvider(
			log.WithProcessor(
				log.NewBatchProcessor(logExporter),
			),
			log.WithResource(resource),
		)
		defer func() {
			if err := lp.Shutdown(context.Background()); err != nil {
				fmt.Printf("failed to shutdown logger provider: %v\n", err)
			}
		}()
		slog.SetDefault(otelslog.NewLogger("aspace-sync", otelslog.WithLoggerProvider(lp)))
		opts.KeepLogger = true
	}

	err := cli.NewRootCommand(opts).ExecuteContext(ctx)
	if err != nil {
		slog.Error("aspace-sync failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.GetExitCode(err)
}
