package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/bootstrap"
	"github.com/igabaycare/care-api/internal/handler/appointment"
	"github.com/igabaycare/care-api/internal/handler/audit"
	"github.com/igabaycare/care-api/internal/handler/auth"
	"github.com/igabaycare/care-api/internal/handler/clinic"
	"github.com/igabaycare/care-api/internal/handler/doctor"
	"github.com/igabaycare/care-api/internal/handler/health"
	"github.com/igabaycare/care-api/internal/handler/notification"
	"github.com/igabaycare/care-api/internal/handler/patient"
	"github.com/igabaycare/care-api/internal/handler/payment"
	"github.com/igabaycare/care-api/internal/handler/prescription"
	"github.com/igabaycare/care-api/internal/handler/prometheus"
	"github.com/igabaycare/care-api/internal/handler/review"
	"github.com/igabaycare/care-api/internal/handler/risk"
	"github.com/igabaycare/care-api/internal/handler/webhook"
	"github.com/igabaycare/care-api/internal/middleware"
	"github.com/igabaycare/care-api/internal/payment/adyen"
	"github.com/igabaycare/care-api/internal/payment/paymongo"
	"github.com/igabaycare/care-api/internal/router"
	"github.com/igabaycare/care-api/internal/search"
	appointmentService "github.com/igabaycare/care-api/internal/service/appointment"
	authService "github.com/igabaycare/care-api/internal/service/auth"
	clinicService "github.com/igabaycare/care-api/internal/service/clinic"
	doctorService "github.com/igabaycare/care-api/internal/service/doctor"
	eventService "github.com/igabaycare/care-api/internal/service/event"
	patientService "github.com/igabaycare/care-api/internal/service/patient"
	paymentService "github.com/igabaycare/care-api/internal/service/payment"
	prescriptionService "github.com/igabaycare/care-api/internal/service/prescription"
	reviewService "github.com/igabaycare/care-api/internal/service/review"
	riskService "github.com/igabaycare/care-api/internal/service/risk"
	jwtauth "github.com/igabaycare/care-api/pkg/auth"
	"github.com/igabaycare/care-api/pkg/security"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Init(ctx, "api")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise")
	}
	defer infra.Close()

	cfg := infra.Config
	repos := infra.Repos
	logger := infra.Logger

	// Clinic directory search is optional; listings fall back to postgres.
	var clinicIndex search.ClinicIndex
	if len(cfg.Elasticsearch.Addresses) > 0 {
		if clinicIndex, err = search.NewClinicIndex(cfg.Elasticsearch); err != nil {
			logger.Error(err, "elasticsearch unavailable, clinic search uses postgres")
			clinicIndex = nil
		}
	}

	// Initialize services
	notifier, reminders, auditor := infra.Notifications()
	events := eventService.NewService(repos.Outbox)
	jwtSvc := jwtauth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL())
	loc := cfg.Booking.Location()

	riskSvc := riskService.NewService()
	authSvc := authService.NewService(repos.Users, jwtSvc, security.NewBcryptHasher(0), auditor)
	patientSvc := patientService.NewService(repos.Patients, repos.Clinics, repos.Appointments, auditor)
	clinicSvc := clinicService.NewService(repos.Clinics, riskSvc, clinicIndex, notifier, auditor, infra.Metrics, cfg.Cache.ClinicListTTL)
	doctorSvc := doctorService.NewService(repos.Doctors, repos.Clinics, repos.Appointments, auditor, loc)
	appointmentSvc := appointmentService.NewService(repos.Appointments, repos.Clinics, repos.Doctors, repos.Patients,
		reminders, notifier, auditor, infra.Metrics, loc)
	paymentSvc := paymentService.NewService(paymentService.Deps{
		Transactions:     repos.Transactions,
		Appointments:     repos.Appointments,
		Patients:         repos.Patients,
		Clinics:          repos.Clinics,
		Adyen:            adyen.NewClient(cfg.Adyen, infra.Metrics),
		AdyenVerifier:    adyen.NewVerifier(cfg.Adyen.HMACKey),
		PayMongo:         paymongo.NewClient(cfg.PayMongo, infra.Metrics),
		PayMongoVerifier: paymongo.NewVerifier(cfg.PayMongo.WebhookSecret, cfg.PayMongo.LiveMode, cfg.PayMongo.SignatureTolerance),
		Dedup:            infra.DedupStore(),
		DedupTTL:         cfg.Webhook.DedupTTL,
		Reminders:        reminders,
		Notifier:         notifier,
		Auditor:          auditor,
		Metrics:          infra.Metrics,
	})
	reviewSvc := reviewService.NewService(repos.Reviews, repos.Appointments, repos.Patients, events)
	prescriptionSvc := prescriptionService.NewService(repos.Prescriptions, repos.Appointments, repos.Clinics,
		repos.Patients, notifier, auditor)

	// Initialize handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)
	metricsHandler := prometheus.New("igabaycare", infra.Registry)

	r, err := router.NewRouter(cfg, metricsHandler,
		health.NewHandler(infra.Checks(), metricsHandler.Handler()),
		auth.NewHandler(authSvc, authMiddleware),
		patient.NewHandler(patientSvc, authMiddleware, auditor),
		clinic.NewHandler(clinicSvc, authMiddleware),
		doctor.NewHandler(doctorSvc, authMiddleware),
		appointment.NewHandler(appointmentSvc, authMiddleware),
		payment.NewHandler(paymentSvc, authMiddleware),
		webhook.NewHandler(paymentSvc),
		notification.NewHandler(notifier, authMiddleware),
		review.NewHandler(reviewSvc, authMiddleware),
		prescription.NewHandler(prescriptionSvc, authMiddleware, auditor),
		risk.NewHandler(riskSvc, authMiddleware),
		audit.NewHandler(auditor, authMiddleware),
	)
	if err != nil {
		logger.Fatal(err, "failed to build router")
	}
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "server forced to shutdown")
	}

	logger.Info("server exited properly")
}
