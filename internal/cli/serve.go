package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hospital-assistant/internal/auth"
	"hospital-assistant/internal/broker"
	"hospital-assistant/internal/core"
	"hospital-assistant/internal/db"
	httpserver "hospital-assistant/internal/http"
	"hospital-assistant/internal/knowledge"
	"hospital-assistant/internal/llm"
	"hospital-assistant/internal/logger"
	"hospital-assistant/internal/metrics"
	"hospital-assistant/internal/session"
	"hospital-assistant/internal/tools"
	"hospital-assistant/internal/voice"
)

const sweepInterval = 5 * time.Minute

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and voice server",
		RunE:  runServe,
	}
	RootCmd.AddCommand(cmd)
	RootCmd.RunE = runServe
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := settings
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, repo, err := openRepository(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	seeded, err := repo.Seed(ctx)
	if err != nil {
		return err
	}
	if seeded {
		log.Info("seeded demo hospital data")
	}

	m := metrics.New()

	notifier := auth.MultiNotifier{auth.LogNotifier{Log: log}}
	if cfg.AMQPURL != "" {
		pub, err := broker.Dial(cfg.AMQPURL, cfg.OTPExchange)
		if err != nil {
			log.WithError(err).Warn("passcode broker unavailable, continuing without it")
		} else {
			defer pub.Close()
			notifier = append(notifier, pub)
		}
	}
	if cfg.DatabaseDriver == db.DriverPostgres {
		notifier = append(notifier, db.NewNotifier(conn, cfg.PostgresNotifyChannel))
	}
	authn := auth.New(repo, notifier, auth.WithTTL(cfg.OTPTTL), auth.WithLogger(log))
	sessions := session.NewStore(cfg.SessionTimeout)

	retriever := buildRetriever(ctx, cfg.OpenAIAPIKey, log)

	engine := llm.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel)
	if !engine.Available() {
		log.Warn("OPENAI_API_KEY is not set, replies will report the assistant as unavailable")
	}
	dispatcher := tools.NewDispatcher(repo, repo, log, tools.WithMetrics(m))
	controller := core.NewController(engine, dispatcher, log, core.WithControllerMetrics(m))
	orch := core.NewOrchestrator(sessions, authn, retriever, controller, m, log)

	machine := voice.NewMachine(sessions, authn, orch, repo, voice.Config{
		ReceptionNumber: cfg.ReceptionNumber,
		ReceptionSpoken: cfg.ReceptionSpoken,
		CallerID:        cfg.TwilioPhoneNumber,
	}, log, voice.WithMetrics(m))

	srv := httpserver.NewServer(httpserver.Config{
		APIRateLimit:    cfg.APIRateLimit,
		VoiceRateLimit:  cfg.VoiceRateLimit,
		RateWindow:      cfg.RateWindow,
		PublicBaseURL:   cfg.PublicBaseURL,
		TwilioAuthToken: cfg.TwilioAuthToken,
		AdminJWTSecret:  cfg.AdminJWTSecret,
	}, httpserver.Deps{
		Orchestrator:  orch,
		Voice:         machine,
		Audit:         repo,
		Metrics:       m,
		Log:           log,
		LLMReady:      engine.Available(),
		KnowledgeDocs: retriever.Len,
	})

	go sweep(ctx, log, sessions, authn, machine, srv)
	return srv.Run(ctx, ":"+cfg.Port)
}

// buildRetriever indexes the FAQ documents, falling back to the local
// embedder when the embedding API cannot be reached.
func buildRetriever(ctx context.Context, apiKey string, log *logrus.Logger) *knowledge.Retriever {
	faqs := knowledge.DefaultFAQs()
	if settings.FAQDir != "" {
		faqs = knowledge.FAQSource(settings.FAQDir)
	}
	if apiKey != "" {
		r := knowledge.NewRetriever(knowledge.NewOpenAIEmbedder(apiKey, settings.OpenAIBaseURL, settings.EmbeddingModel), log)
		err := r.IndexFS(ctx, faqs)
		if err == nil {
			log.WithField("chunks", r.Len()).Info("knowledge base indexed")
			return r
		}
		log.WithError(err).Warn("embedding API failed, using local embeddings")
	}
	r := knowledge.NewRetriever(knowledge.HashEmbedder{}, log)
	if err := r.IndexFS(ctx, faqs); err != nil {
		log.WithError(err).Error("knowledge base indexing failed")
	}
	log.WithField("chunks", r.Len()).Info("knowledge base indexed")
	return r
}

// sweep evicts expired sessions, passcodes, stale calls and idle rate-limit
// buckets until ctx is done.
func sweep(ctx context.Context, log logrus.FieldLogger, sessions *session.Store, authn *auth.Authenticator,
	machine *voice.Machine, srv *httpserver.Server) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.WithFields(logrus.Fields{
				"sessions":  sessions.ExpireSweep(),
				"passcodes": authn.ExpireSweep(),
				"calls":     machine.CleanupStale(0),
				"buckets":   srv.SweepLimiters(),
			}).Debug("sweep")
		}
	}
}
