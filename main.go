package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"conductor/artifacts"
	"conductor/auth"
	"conductor/config"
	"conductor/consul"
	"conductor/coordinator"
	"conductor/handler"
	"conductor/hub"
	"conductor/jobs"
	"conductor/model"
	"conductor/passport"
	"conductor/provider/nomadci"
	"conductor/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	level, lerr := zerolog.ParseLevel(cfg.LogLevel)
	if lerr != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration")
	}

	// Job queue; jobs stranded running by a crash are re-queued first.
	queue := jobs.NewQueue(db.Pool, cfg.JobMaxAttempts)
	if n, err := queue.RequeueStuck(ctx, cfg.VisibilityTimeout); err != nil {
		log.Warn().Err(err).Msg("job recovery")
	} else if n > 0 {
		log.Info().Int64("jobs", n).Msg("re-queued stuck jobs")
	}

	// Consul
	consulClient, err := consul.NewClient(cfg.ConsulAddr)
	if err != nil {
		log.Warn().Err(err).Msg("consul unavailable")
		consulClient = nil
	} else if err := consulClient.Healthy(); err != nil {
		log.Warn().Err(err).Msg("consul not healthy")
		consulClient = nil
	} else {
		log.Info().Str("addr", cfg.ConsulAddr).Msg("consul connected")
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	// WebSocket hub
	ws := hub.New(allowedOrigins, log)
	go ws.Run()

	// Passport audit log
	passports := passport.NewPostgresStore(db.Pool)

	// Coordinator
	coord := coordinator.New(db, queue, passports, ws, log)

	// Nomad CI
	if ci, err := nomadci.New(cfg.NomadAddr); err != nil {
		log.Warn().Err(err).Msg("nomad unavailable")
	} else {
		if err := ci.Healthy(); err != nil {
			log.Warn().Err(err).Msg("nomad not healthy")
		} else {
			log.Info().Str("addr", cfg.NomadAddr).Msg("nomad connected")
		}
		coord.RegisterCI("nomad", ci)
	}

	// Artifact storage
	if cfg.S3Endpoint != "" {
		s3, err := artifacts.New(artifacts.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("artifact storage unavailable")
		} else {
			log.Info().Str("endpoint", cfg.S3Endpoint).Msg("artifact storage connected")
			coord.SetArtifactStore(s3)
		}
	}

	// Workers
	worker := jobs.NewWorker(queue, cfg.Workers, jobs.ExponentialBackoff(cfg.BackoffBase, cfg.BackoffMax), log)
	coord.RegisterJobHandlers(worker)
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("worker pool stopped")
		}
	}()

	// Leader-gated sweeps
	if consulClient != nil {
		sched := jobs.NewScheduler(consulClient, "conductor/scheduler/leader", log)
		coord.RegisterSweeps(sched, cfg.VisibilityTimeout)
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	} else {
		log.Warn().Msg("no consul, scheduler sweeps disabled")
	}

	loadTrainFiles(ctx, cfg.TrainsDir, db, coord, log)

	// Service registration
	serviceID := "conductor"
	if host, err := os.Hostname(); err == nil {
		serviceID = "conductor-" + host
	}
	if consulClient != nil {
		port, perr := strconv.Atoi(cfg.Port)
		if perr != nil {
			port = 8800
		}
		if err := consulClient.Register(serviceID, "conductor", cfg.BindAddr, port); err != nil {
			log.Warn().Err(err).Msg("consul registration failed")
		}
	}

	// Handler
	authn := auth.New(cfg.APIToken, cfg.JWTSecret)
	h := handler.New(db, coord, consulClient, ws, cfg, passports, log)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(protect(authn))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})

		r.Post("/webhooks/vcs/{provider}", h.VCSWebhook)
		r.Post("/webhooks/ci", h.CIWebhook)

		r.Get("/trains", h.ListTrains)
		r.Post("/trains", h.CreateTrain)
		r.Route("/trains/{id}", func(r chi.Router) {
			r.Get("/", h.GetTrain)
			r.Post("/activate", h.ActivateTrain)
			r.Get("/releases", h.ListReleases)
			r.Post("/releases", h.StartRelease)
			r.Post("/hotfix", h.StartHotfix)
		})

		r.Route("/releases/{releaseId}", func(r chi.Router) {
			r.Get("/", h.GetRelease)
			r.Post("/stop", h.StopRelease)
			r.Post("/finalize/retry", h.RetryFinalize)
		})

		r.Route("/platform-runs/{platformRunId}", func(r chi.Router) {
			r.Get("/step-runs", h.ListStepRuns)
			r.Get("/submissions", h.ListSubmissions)
		})

		r.Route("/step-runs/{stepRunId}", func(r chi.Router) {
			r.Get("/deployment-runs", h.ListDeploymentRuns)
			r.Post("/retry", h.RetryStepRun)
		})

		r.Post("/deployment-runs/{deploymentRunId}/fail", h.FailDeploymentRun)
		r.Post("/submissions/{submissionId}/retry", h.RetrySubmission)

		r.Route("/rollouts/{rolloutId}", func(r chi.Router) {
			r.Get("/", h.GetRollout)
			r.Post("/advance", h.AdvanceRollout)
			r.Post("/advance/retry", h.RetryRolloutAdvance)
			r.Post("/pause", h.PauseRollout)
			r.Post("/resume", h.ResumeRollout)
			r.Post("/halt", h.HaltRollout)
			r.Post("/release-fully", h.ReleaseRolloutFully)
			r.Post("/sync", h.SyncRollout)
		})

		r.Post("/queues/{queueId}/apply", h.ApplyBuildQueue)

		r.Get("/passports", h.RecentPassports)
		r.Get("/passports/{entityType}/{entityId}", h.EntityTimeline)
	})

	r.Get("/ws", ws.HandleConnect)

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Info().Str("version", Version).Str("addr", srv.Addr).Msg("conductor listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if consulClient != nil {
		if err := consulClient.Deregister(serviceID); err != nil {
			log.Warn().Err(err).Msg("consul deregistration failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// protect applies bearer auth everywhere except the endpoints external
// systems hit without credentials (webhooks verify their own HMAC).
func protect(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authed := a.Middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := r.URL.Path
			if p == "/ws" || p == "/api/health" || p == "/api/version" || strings.HasPrefix(p, "/api/webhooks/") {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// loadTrainFiles creates trains from YAML definitions dropped in the
// trains directory. Trains already present by name are left alone.
func loadTrainFiles(ctx context.Context, dir string, db *store.DB, coord *coordinator.Coordinator, log zerolog.Logger) {
	var paths []string
	for _, pat := range []string{"*.yml", "*.yaml"} {
		matches, _ := filepath.Glob(filepath.Join(dir, pat))
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return
	}

	existing, err := db.ListTrains(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("train file load skipped")
		return
	}
	byName := map[string]bool{}
	for _, t := range existing {
		byName[t.Name] = true
	}

	for _, path := range paths {
		spec, err := model.LoadTrainSpec(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("bad train file")
			continue
		}
		if byName[spec.Name] {
			continue
		}
		res := coord.CreateTrain(ctx, spec)
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("file", path).Msg("train create failed")
			continue
		}
		log.Info().Str("train", spec.Name).Str("file", path).Msg("train loaded")
	}
}
