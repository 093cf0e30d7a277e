// watsonkitd runs a widget scene and serves its control surfaces.
//
// The scene YAML names the widgets and their connections; service
// credentials come from VCAP_SERVICES, per-service variables or a .env
// file. The gRPC health service and the HTTP control API run until
// SIGINT or SIGTERM.
//
// Usage:
//
//	go run ./cmd -scene scene.yaml                     # Defaults :50051 / :8080
//	go run ./cmd -scene scene.yaml -config sdk.yaml    # Settings from YAML
//	arecord -f S16_LE -r 16000 -c 1 | watsonkitd -scene scene.yaml -mic -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/watsonkit/watsonkit/config"
	"github.com/watsonkit/watsonkit/events"
	"github.com/watsonkit/watsonkit/observability"
	"github.com/watsonkit/watsonkit/server"
	"github.com/watsonkit/watsonkit/widget"
	"github.com/watsonkit/watsonkit/widgets"
)

// Version of the daemon.
const Version = "1.0.0"

var levels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// stdLogger writes leveled logs through the standard library log package.
type stdLogger struct {
	min int
}

func newStdLogger(level string) *stdLogger {
	return &stdLogger{min: levels[level]}
}

func (l *stdLogger) logf(level, msg string, keysAndValues []any) {
	if levels[level] < l.min {
		return
	}
	log.Printf("[%s] %s %v", level, msg, keysAndValues)
}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) { l.logf("DEBUG", msg, keysAndValues) }
func (l *stdLogger) Info(msg string, keysAndValues ...any)  { l.logf("INFO", msg, keysAndValues) }
func (l *stdLogger) Warn(msg string, keysAndValues ...any)  { l.logf("WARN", msg, keysAndValues) }
func (l *stdLogger) Error(msg string, keysAndValues ...any) { l.logf("ERROR", msg, keysAndValues) }

type options struct {
	configPath  string
	scenePath   string
	credsPath   string
	envFile     string
	grpcAddr    string
	httpAddr    string
	micPath     string
	audioOut    string
	showVersion bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("watsonkitd", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "SDK settings YAML")
	fs.StringVar(&o.scenePath, "scene", "", "scene YAML (required)")
	fs.StringVar(&o.credsPath, "credentials", "", "VCAP_SERVICES JSON file")
	fs.StringVar(&o.envFile, "env", ".env", "dotenv file with service credentials")
	fs.StringVar(&o.grpcAddr, "grpc", "", "gRPC address (overrides config)")
	fs.StringVar(&o.httpAddr, "http", "", "HTTP address (overrides config)")
	fs.StringVar(&o.micPath, "mic", "", "raw 16-bit PCM source for Microphone widgets, - for stdin")
	fs.StringVar(&o.audioOut, "audio-out", "", "file receiving AudioSink output")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if !o.showVersion && o.scenePath == "" {
		return o, errors.New("-scene is required")
	}
	return o, nil
}

func loadConfig(o options) (*config.SDKConfig, error) {
	cfg := config.DefaultSDKConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadSDKConfigFile(o.configPath); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if o.grpcAddr != "" {
		cfg.GRPCAddr = o.grpcAddr
	}
	if o.httpAddr != "" {
		cfg.HTTPAddr = o.httpAddr
	}
	return cfg, nil
}

func loadCredentials(o options) (*config.Credentials, error) {
	creds, err := config.CredentialsFromEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	if o.credsPath != "" {
		fromFile, err := config.LoadCredentialsFile(o.credsPath)
		if err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}
		creds.Merge(fromFile)
	}
	return creds, nil
}

func openAudio(o options) (io.Reader, io.Writer, func(), error) {
	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	var src io.Reader
	switch o.micPath {
	case "":
	case "-":
		src = os.Stdin
	default:
		f, err := os.Open(o.micPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mic: %w", err)
		}
		src = f
		closers = append(closers, f)
	}
	var out io.Writer
	if o.audioOut != "" {
		f, err := os.Create(o.audioOut)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("audio-out: %w", err)
		}
		out = f
		closers = append(closers, f)
	}
	return src, out, closeAll, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if o.showVersion {
		fmt.Println("watsonkitd", Version)
		return
	}
	if err := run(o); err != nil {
		log.Fatalf("watsonkitd: %v", err)
	}
}

func run(o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logger := newStdLogger(cfg.LogLevel)
	logger.Info("watsonkitd_starting", "version", Version, "grpc", cfg.GRPCAddr, "http", cfg.HTTPAddr)

	creds, err := loadCredentials(o)
	if err != nil {
		return err
	}
	logger.Info("credentials_loaded", "services", creds.Labels())

	scene, err := config.LoadSceneFile(o.scenePath)
	if err != nil {
		return fmt.Errorf("scene: %w", err)
	}

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer("watsonkitd", Version, cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
		logger.Info("tracing_enabled", "endpoint", cfg.OTLPEndpoint)
	}

	bus := events.NewInMemoryBus(logger)
	bus.AddMiddleware(events.NewLoggingMiddleware(logger))
	bus.AddMiddleware(events.NewCircuitBreakerMiddleware(cfg.BreakerFailureThreshold, cfg.BreakerTimeout(), nil, logger))

	services, err := widgets.NewServices(cfg, creds, logger)
	if err != nil {
		return err
	}
	audioIn, audioOut, closeAudio, err := openAudio(o)
	if err != nil {
		return err
	}
	defer closeAudio()
	factory := &widgets.Factory{
		Services:    services,
		Bus:         bus,
		Logger:      logger,
		AudioSource: audioIn,
		AudioOut:    audioOut,
	}
	if cfg.MQTTBroker != "" {
		factory.MQTT = widgets.NewMQTTClient(cfg, "", logger)
	}

	container := widget.NewContainer(logger,
		widget.WithEventBus(bus),
		widget.WithDispatchObserver(observability.NewDispatchMetrics()),
	)
	if err := factory.BuildScene(container, scene); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.Init(ctx); err != nil {
		if shutdownErr := container.Shutdown(context.Background()); shutdownErr != nil {
			logger.Warn("container_shutdown_failed", "error", shutdownErr.Error())
		}
		return err
	}
	logger.Info("scene_initialized", "scene", scene.Name, "widgets", len(container.Widgets()))

	grpcServer := server.NewGRPCServer(container, cfg.GRPCAddr, logger)
	grpcErr, err := grpcServer.StartBackground()
	if err != nil {
		_ = container.Shutdown(context.Background())
		return err
	}
	go grpcServer.WatchHealth(ctx, 5*time.Second)

	httpServer := server.NewHandler(container, logger).NewHTTPServer(cfg.HTTPAddr)
	httpErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()
	logger.Info("watsonkitd_ready", "grpc", grpcServer.Addr().String(), "http", cfg.HTTPAddr)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-grpcErr:
		serveErr = err
	case err := <-httpErr:
		serveErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_failed", "error", err.Error())
	}
	grpcServer.GracefulStop()
	if err := container.Shutdown(shutdownCtx); err != nil {
		logger.Error("container_shutdown_failed", "error", err.Error())
	}
	logger.Info("watsonkitd_stopped")
	return serveErr
}
