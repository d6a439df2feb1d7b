// Command sonic-prism runs the phone-call session engine: it serves the
// telephony media-stream websocket and wires together the snippet
// cache, turn detection, response resolution, recording and call logs.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/web3mammon/sonic-prism-core/pkg/core/cache"
	"github.com/web3mammon/sonic-prism-core/pkg/core/call"
	"github.com/web3mammon/sonic-prism-core/pkg/core/pace"
	"github.com/web3mammon/sonic-prism-core/pkg/core/profile"
	"github.com/web3mammon/sonic-prism-core/pkg/core/record"
	"github.com/web3mammon/sonic-prism-core/pkg/core/respond"
	"github.com/web3mammon/sonic-prism-core/pkg/core/session"
	"github.com/web3mammon/sonic-prism-core/pkg/gateway/config"
	"github.com/web3mammon/sonic-prism-core/pkg/gateway/metrics"
	gatewayserver "github.com/web3mammon/sonic-prism-core/pkg/gateway/server"
	"github.com/web3mammon/sonic-prism-core/pkg/gateway/speech"
	"github.com/web3mammon/sonic-prism-core/pkg/gateway/telephony"
	"github.com/web3mammon/sonic-prism-core/pkg/store/calllog"
)

type engineDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultEngineDeps() engineDeps {
	return engineDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		SilenceThresholdBase:          cfg.SilenceThresholdBase,
		SilenceThresholdAfterQuestion: cfg.SilenceThresholdAfterQuestion,
		QuestionRecencyWindow:         cfg.QuestionRecencyWindow,
		PollInterval:                  cfg.TurnPollInterval,
		MinWords:                      cfg.MinWords,
		CallTimeout:                   cfg.CallTimeout,
		PaymentTimeout:                cfg.PaymentTimeout,
	}
}

func runEngine(ctx context.Context, logger *slog.Logger, deps engineDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	snippets := cache.New(cfg.AudioDir)
	snippets.SetDebug(func(category, message string) {
		logger.Debug(message, "category", category)
	})
	if err := snippets.Load(cfg.ManifestPath); err != nil {
		return fmt.Errorf("load snippet library: %w", err)
	}
	logger.Info("snippet library loaded", "snippets", snippets.Len(), "dir", cfg.AudioDir)

	profiles := profile.NewStore(nil)
	if cfg.ProfilesPath != "" {
		profiles, err = profile.LoadFile(cfg.ProfilesPath)
		if err != nil {
			return fmt.Errorf("load client profiles: %w", err)
		}
	}

	var logs calllog.Logger
	if cfg.DatabaseURL != "" {
		pg, err := calllog.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect call log store: %w", err)
		}
		defer pg.Close()
		logs = pg
		logger.Info("call logs persisted to postgres")
	} else {
		logs = calllog.NewMemory()
		logger.Warn("no database configured, call logs are in-memory only")
	}

	var generator respond.Generator
	if cfg.GeminiAPIKey != "" {
		generator, err = respond.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return fmt.Errorf("init response generator: %w", err)
		}
	} else {
		logger.Warn("no gemini api key, responses limited to quick matches and fallbacks")
	}

	m := metrics.New(cfg.MetricsNamespace)

	recorder := record.New(cfg.RecordingsDir, cfg.RecordingWorkers)
	recorder.SetCallbacks(
		func(category, message string) {
			logger.Debug(message, "category", category)
		},
		func(callID, path string, duration time.Duration) {
			m.RecordFinalize(duration)
			logger.Info("recording finalized", "call_id", callID, "path", path)
		},
	)
	defer recorder.Close()

	elevenCfg := speech.DefaultElevenConfig(cfg.ElevenAPIKey)
	elevenCfg.BaseURL = cfg.ElevenBaseURL

	var terminator call.Terminator
	if cfg.TwilioAccountSID != "" {
		terminator = telephony.NewTwilioTerminator(
			telephony.DefaultTwilioConfig(cfg.TwilioAccountSID, cfg.TwilioAuthToken), nil)
	} else {
		logger.Warn("no twilio credentials, assistant-initiated hangups rely on the stream stop frame")
	}

	sessCfg := sessionConfig(cfg)
	gw := gatewayserver.New(gatewayserver.Deps{
		Sessions:    session.NewManager(profiles, sessCfg),
		Cache:       snippets,
		Resolver:    respond.NewResolver(snippets, generator),
		Recorder:    recorder,
		Logs:        logs,
		Metrics:     m,
		Synthesizer: speech.NewElevenSynthesizer(elevenCfg, nil),
		Terminator:  terminator,
		NewRecognizer: func() call.Recognizer {
			dg := speech.DefaultDeepgramConfig(cfg.DeepgramAPIKey)
			dg.Model = cfg.DeepgramModel
			return speech.NewDeepgramRecognizer(dg)
		},
		SessionConfig: sessCfg,
		PacerConfig: pace.Config{
			ChunkSize:  cfg.ChunkSize,
			FrameDelay: cfg.FrameDelay,
		},
		GreetingKey: cfg.GreetingKey,
		Logger:      logger,
	})

	httpSrv := buildHTTPServer(cfg, gw.Handler())
	logger.Info("starting call engine", "addr", cfg.Addr)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("call engine stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps engineDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "sonic-prism: %v\n", err)
		return 1
	}

	if err := runEngine(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "sonic-prism: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultEngineDeps()))
}
