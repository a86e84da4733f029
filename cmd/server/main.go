// server runs the cheque custody JSON API and the gRPC health service.
package main

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cheque-custody/backend/internal/artifact"
	artifacthandler "cheque-custody/backend/internal/artifact/handler"
	"cheque-custody/backend/internal/audit"
	chequehandler "cheque-custody/backend/internal/cheque/handler"
	chequeservice "cheque-custody/backend/internal/cheque/service"
	"cheque-custody/backend/internal/config"
	"cheque-custody/backend/internal/custody/repository"
	"cheque-custody/backend/internal/db"
	"cheque-custody/backend/internal/devotp"
	devotphandler "cheque-custody/backend/internal/devotp/handler"
	healthhandler "cheque-custody/backend/internal/health/handler"
	operatorhandler "cheque-custody/backend/internal/operator/handler"
	operatorrepo "cheque-custody/backend/internal/operator/repository"
	operatorservice "cheque-custody/backend/internal/operator/service"
	otpdomain "cheque-custody/backend/internal/otp/domain"
	otphandler "cheque-custody/backend/internal/otp/handler"
	"cheque-custody/backend/internal/otp/notify"
	otpservice "cheque-custody/backend/internal/otp/service"
	overridehandler "cheque-custody/backend/internal/override/handler"
	"cheque-custody/backend/internal/override/policy"
	overrideservice "cheque-custody/backend/internal/override/service"
	"cheque-custody/backend/internal/security"
	"cheque-custody/backend/internal/server"
	"cheque-custody/backend/internal/telemetry"
	telemetryotel "cheque-custody/backend/internal/telemetry/otel"
	"cheque-custody/backend/internal/telemetry/producer"
	"cheque-custody/backend/internal/throttle"
)

const serviceName = "cheque-custody"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Fatalf("otel: metrics: %v", err)
	}

	var events producer.Producer
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.EventsTopic); kp != nil {
		events = kp
		log.Printf("events: publishing to kafka topic %s", cfg.EventsTopic)
	}
	publisher := audit.NewPublisher(events, telemetryotel.NewEventEmitter(providers.LoggerProvider))

	var (
		conn      *sql.DB
		custody   repository.Repository
		operators operatorrepo.Repository
	)
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		custody = repository.NewPostgresRepository(conn, cfg.LockTimeout)
		operators = operatorrepo.NewPostgresRepository(conn)
	} else {
		log.Println("db: DATABASE_URL not set; custody data is kept in memory")
		custody = repository.NewMemoryRepository(cfg.LockTimeout)
		operators = operatorrepo.NewMemoryRepository()
	}

	priv, pub, err := signingKeys(cfg)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessTTL)
	auth := operatorservice.NewAuthService(operators, security.NewHasher(cfg.BcryptCost), tokens)

	module, err := policy.LoadModule(cfg.OverridePolicyFile)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	evaluator, err := policy.NewOPAEvaluator(ctx, module)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	store, err := artifact.NewStore(cfg.ArtifactDir, cfg.ArtifactMaxBytes)
	if err != nil {
		log.Fatalf("artifact: %v", err)
	}

	var codes *devotp.MemoryStore
	if cfg.OTPReturnToClient {
		codes = devotp.NewMemoryStore()
		log.Println("otp: dev OTP mode enabled; codes are returned to callers")
	}

	lifecycle := chequeservice.NewLifecycle(custody, publisher, nil)
	manager := otpservice.NewManager(custody, lifecycle, buildNotifier(cfg), devStore(codes), publisher, metrics, otpservice.Config{
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		DevMode:     cfg.OTPReturnToClient,
	}, nil)
	workflow := overrideservice.NewWorkflow(custody, lifecycle, evaluator, publisher, metrics, nil)

	dispatch := throttle.New(throttle.Config{
		MaxConcurrent: cfg.ThrottleMaxConcurrent,
		MinInterval:   cfg.DispatchMinInterval(),
		QueueSize:     cfg.ThrottleQueueSize,
	}, metrics)

	var pinger healthhandler.Pinger
	if conn != nil {
		pinger = conn
	}
	health := healthhandler.NewServer(pinger, evaluator)

	handlers := []server.RouteRegistrar{
		operatorhandler.NewHandler(auth),
		chequehandler.NewHandler(lifecycle),
		otphandler.NewHandler(manager, store),
		overridehandler.NewHandler(workflow, store),
		artifacthandler.NewHandler(store),
	}
	public := []func(*http.Request) bool{
		func(r *http.Request) bool { return r.URL.Path == operatorhandler.LoginPath },
	}
	if codes != nil {
		handlers = append(handlers, devotphandler.NewHandler(codes))
		public = append(public, devotphandler.IsPublic)
		go sweepDevCodes(codes)
	}
	router := server.NewRouter(server.Deps{
		Tokens:   tokens,
		Throttle: dispatch,
		Events:   events,
		Health:   health,
		Public:   public,
		Handlers: handlers,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	grpcSrv := server.NewGRPCServer(health)
	if !cfg.IsProduction() {
		server.EnableReflection(grpcSrv)
	}

	go func() {
		log.Printf("gRPC health listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	grpcSrv.GracefulStop()
	_ = dispatch.Close()

	time.Sleep(telemetry.ShutdownDrainDuration)
	if events != nil {
		_ = events.Close()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("servers stopped")
}

// signingKeys loads the JWT key pair, or generates an ephemeral one outside
// production when none is configured.
func signingKeys(cfg *config.Config) (crypto.Signer, crypto.PublicKey, error) {
	if cfg.JWTPrivateKey == "" {
		log.Println("jwt: JWT_PRIVATE_KEY not set; using an ephemeral key (tokens die with the process)")
		return security.GenerateKeyPair()
	}
	return security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
}

// buildNotifier routes each OTP channel to its configured provider. Outside
// production, unconfigured channels are written to the log.
func buildNotifier(cfg *config.Config) notify.Notifier {
	var fallback notify.Notifier
	if !cfg.IsProduction() {
		fallback = notify.LogNotifier{RevealCode: cfg.OTPReturnToClient}
	}
	r := notify.NewRouter(fallback)
	if cfg.SMSLocalAPIKey != "" {
		r.Register(otpdomain.ChannelSMS, notify.NewSMSLocal(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
	}
	if cfg.WhatsAppWebhookURL != "" {
		r.Register(otpdomain.ChannelWhatsApp, notify.NewWebhook(cfg.WhatsAppWebhookURL, cfg.NotifyWebhookToken))
	}
	if cfg.EmailWebhookURL != "" {
		r.Register(otpdomain.ChannelEmail, notify.NewWebhook(cfg.EmailWebhookURL, cfg.NotifyWebhookToken))
	}
	return r
}

// devStore keeps a nil *MemoryStore from becoming a non-nil interface.
func devStore(s *devotp.MemoryStore) devotp.Store {
	if s == nil {
		return nil
	}
	return s
}

func sweepDevCodes(s *devotp.MemoryStore) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for range t.C {
		if n := s.Sweep(); n > 0 {
			log.Printf("otp: swept %d expired dev codes", n)
		}
	}
}
