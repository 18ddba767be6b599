package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/speech-stream-service/internal/audio"
	"github.com/skypro1111/speech-stream-service/internal/capture"
	"github.com/skypro1111/speech-stream-service/internal/config"
	"github.com/skypro1111/speech-stream-service/internal/metrics"
	"github.com/skypro1111/speech-stream-service/internal/playback"
	"github.com/skypro1111/speech-stream-service/internal/server"
	"github.com/skypro1111/speech-stream-service/internal/subtitle"
	"github.com/skypro1111/speech-stream-service/internal/transcription"
	"github.com/skypro1111/speech-stream-service/internal/tts"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "speech-stream-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	mode := flag.String("mode", "transcribe", "Run mode: transcribe or speak")
	text := flag.String("text", "", "Text to synthesize in speak mode")
	output := flag.String("output", "output.srt", "Subtitle output path in transcribe mode")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
		slog.String("mode", *mode),
	)

	if err := portaudio.Initialize(); err != nil {
		logger.Error("Failed to initialize audio subsystem", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer portaudio.Terminate()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var exitCode int
	switch *mode {
	case "transcribe":
		exitCode = runTranscribe(ctx, cfg, logger, appMetrics, sigChan, *output)
	case "speak":
		exitCode = runSpeak(ctx, cfg, logger, appMetrics, sigChan, *text)
	default:
		logger.Error("Unknown mode", slog.String("mode", *mode))
		exitCode = 1
	}

	logger.Info("Service stopped")
	os.Exit(exitCode)
}

// transcriptLogger prints transcript updates as they arrive and counts
// session failures.
type transcriptLogger struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (t *transcriptLogger) OnTranscript(event transcription.TranscriptEvent) {
	t.metrics.RecordSegments(false)
	t.logger.Info("Transcript update",
		slog.String("session_id", event.SessionID),
		slog.String("kind", event.Kind.String()),
		slog.String("text", event.Text),
	)
}

func (t *transcriptLogger) OnSessionError(sessionID string, err error) {
	t.metrics.RecordSessionFailed()
	t.logger.Error("Session failed",
		slog.String("session_id", sessionID),
		slog.String("error", err.Error()),
	)
}

// runTranscribe streams microphone audio to every configured
// recognition server and writes the transcript as subtitles on exit.
func runTranscribe(ctx context.Context, cfg *config.Config, logger *slog.Logger,
	appMetrics *metrics.Metrics, sigChan chan os.Signal, outputPath string) int {

	registry := transcription.NewRegistry()
	sink := &transcriptLogger{logger: logger, metrics: appMetrics}

	httpServer := startHTTPServer(cfg, logger, registry, nil, appMetrics)

	var sessions []*transcription.Session
	startedAt := time.Now()
	for _, serverURL := range cfg.Transcription.Servers {
		session := transcription.NewSession(cfg.Transcription.SessionConfig(serverURL), logger, sink)
		if err := session.Connect(ctx); err != nil {
			logger.Error("Failed to connect to recognition server",
				slog.String("server", serverURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		registry.Register(session)
		sessions = append(sessions, session)
		appMetrics.RecordSessionCreated()
		logger.Info("Connected to recognition server",
			slog.String("server", serverURL),
			slog.String("session_id", session.UID()),
		)
	}
	if len(sessions) == 0 {
		logger.Error("No recognition server reachable")
		return 1
	}
	appMetrics.SetActiveSessions(registry.Len())

	tee := capture.NewTee(logger, appMetrics)
	for _, session := range sessions {
		tee.Attach(session)
	}

	if cfg.Capture.RecordingPath != "" {
		recorder, err := audio.NewRecorder(cfg.Capture.RecordingPath, capture.CaptureSampleRate)
		if err != nil {
			logger.Error("Failed to create recording file", slog.String("error", err.Error()))
			return 1
		}
		defer recorder.Close()
		tee.SetRecorder(recorder)
		logger.Info("Recording captured audio", slog.String("path", cfg.Capture.RecordingPath))
	}

	if err := tee.Start(); err != nil {
		logger.Error("Failed to start audio capture", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("Transcribing, press Ctrl+C to stop")
	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	tee.Stop(shutdownCtx)

	stopHTTPServer(httpServer, logger)

	// The first session's transcript becomes the subtitle file; the
	// others transcribe the same audio.
	primary := sessions[0]
	transcript := primary.Transcript(transcription.KindTranscription)
	translated := primary.Transcript(transcription.KindTranslation)
	if err := subtitle.WriteTranscripts(transcript, translated, outputPath); err != nil {
		logger.Error("Failed to write subtitles", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("Subtitles written",
		slog.String("path", outputPath),
		slog.Int("segments", len(transcript)),
	)

	sessionDuration := time.Since(startedAt).Seconds()
	for _, session := range sessions {
		registry.Unregister(session.UID())
		appMetrics.RecordSessionClosed(sessionDuration)
	}
	appMetrics.SetActiveSessions(0)
	return 0
}

// runSpeak synthesizes the given text and plays it on the default
// output device.
func runSpeak(ctx context.Context, cfg *config.Config, logger *slog.Logger,
	appMetrics *metrics.Metrics, sigChan chan os.Signal, text string) int {

	if text == "" {
		logger.Error("Speak mode requires -text")
		return 1
	}
	if cfg.TTS.Endpoint == "" {
		logger.Error("Speak mode requires tts.endpoint in the configuration")
		return 1
	}

	outputCfg, err := playback.ResolveOutputConfig()
	if err != nil {
		logger.Error("Failed to resolve output device", slog.String("error", err.Error()))
		return 1
	}
	if cfg.Playback.FramesPerBuffer > 0 {
		outputCfg.FramesPerBuffer = cfg.Playback.FramesPerBuffer
	}
	logger.Info("Output device resolved",
		slog.Int("sample_rate", outputCfg.SampleRate),
		slog.Int("channels", outputCfg.Channels),
	)

	decoder := playback.NewDecoder(outputCfg.SampleRate, outputCfg.Channels, logger)
	defer decoder.Close()

	httpServer := startHTTPServer(cfg, logger, transcription.NewRegistry(), decoder, appMetrics)
	defer stopHTTPServer(httpServer, logger)

	sink, err := playback.NewSink(decoder, outputCfg, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to open playback sink", slog.String("error", err.Error()))
		return 1
	}
	defer sink.Close()

	if err := sink.Start(); err != nil {
		logger.Error("Failed to start playback", slog.String("error", err.Error()))
		return 1
	}

	feeder := tts.NewFeeder(decoder, logger, appMetrics)
	defer feeder.Close()

	provider := &tts.StaticProvider{
		URL:     cfg.TTS.Endpoint,
		Headers: ttsHeaders(cfg.TTS),
		BuildRequest: func(text string) ([]byte, error) {
			return json.Marshal(map[string]string{
				"text":  text,
				"voice": cfg.TTS.Voice,
			})
		},
	}

	if err := feeder.StartStreaming(ctx, text, provider); err != nil {
		logger.Error("Failed to start TTS stream", slog.String("error", err.Error()))
		return 1
	}

	// Play until the stream finishes and the queue drains, or a signal
	// arrives.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			feeder.Stop()
			return 0
		case <-ticker.C:
			appMetrics.SetPlaybackQueueSize(decoder.QueueStats().Queued)
			if !feeder.Streaming() && !decoder.HasSamples() {
				logger.Info("Playback finished",
					slog.Uint64("underruns", sink.Underruns()),
				)
				return 0
			}
		}
	}
}

func ttsHeaders(cfg config.TTSConfig) http.Header {
	if cfg.APIKey == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+cfg.APIKey)
	return h
}

func startHTTPServer(cfg *config.Config, logger *slog.Logger,
	registry *transcription.Registry, decoder *playback.Decoder, m *metrics.Metrics) *server.HTTPServer {

	if !cfg.HTTP.Enabled {
		return nil
	}

	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, decoder, m)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("HTTP API server initialized",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)
	return httpServer
}

func stopHTTPServer(httpServer *server.HTTPServer, logger *slog.Logger) {
	if httpServer == nil {
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
