package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	v1 "github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/controller/http/v1"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/usecase"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/jobs"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/reader"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/registry"
	psqlRepo "github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/repository/psql"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/repository/rabbitmq"
	redisRepo "github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/repository/redis"
	s3Repo "github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/repository/s3"
	psqlClient "github.com/JimBoHa/Infrastructure-Dashboard-sub003/pkg/client/psql"
	redisClient "github.com/JimBoHa/Infrastructure-Dashboard-sub003/pkg/client/redis"
	s3Client "github.com/JimBoHa/Infrastructure-Dashboard-sub003/pkg/client/s3"
	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/pkg/middleware"
)

type Config struct {
	HTTPAddr  string
	Workers   int
	QueueSize int

	RedisAddr string
	RedisDB   int

	PSQLHost     string
	PSQLPort     int
	PSQLUser     string
	PSQLPassword string
	PSQLDBName   string
	PSQLSSLMode  string

	S3Host      string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	RabbitMQURL string
}

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(lvl)
	}
	log := logrus.WithField("component", "main")

	cfg := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := psqlClient.NewPostgresDB(psqlClient.Config{
		Host:     cfg.PSQLHost,
		Port:     cfg.PSQLPort,
		User:     cfg.PSQLUser,
		Password: cfg.PSQLPassword,
		DBName:   cfg.PSQLDBName,
		SslMode:  cfg.PSQLSSLMode,
	})
	if err != nil {
		log.WithError(err).Fatal("postgres init failed")
	}
	if err := db.AutoMigrate(&psqlRepo.JobRecord{}, &psqlRepo.SampleRecord{}, &psqlRepo.SensorRecord{}); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	sampleRepo := psqlRepo.NewGormSampleRepo(db)
	jobRepo := psqlRepo.NewGormJobRepo(db)

	rdb, err := redisClient.NewRedisClient(ctx, redisClient.Config{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err != nil {
		log.WithError(err).Fatal("redis init failed")
	}
	mirror := redisRepo.NewRedisRepo(rdb)

	storage, err := s3Client.NewS3Client(cfg.S3Host, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket)
	if err != nil {
		log.WithError(err).Fatal("s3 init failed")
	}
	results := s3Repo.NewS3Repo(storage)

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.WithError(err).Fatal("rabbitmq connection failed")
	}
	defer conn.Close()
	publisher, err := rabbitmq.NewEventPublisher(conn, "analytics.events", "jobs.lifecycle")
	if err != nil {
		log.WithError(err).Fatal("rabbitmq publisher init failed")
	}

	sensors := registry.New()
	if err := sensors.Load(ctx, sampleRepo); err != nil {
		log.WithError(err).Fatal("sensor registry load failed")
	}
	log.WithField("sensors", sensors.Len()).Info("sensor registry loaded")

	uc := usecase.NewAnalysisUseCase(reader.New(sampleRepo, sensors), sensors)
	engine := jobs.NewEngine(uc, mirror, jobRepo, publisher, results, jobs.Config{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	engine.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogging())
	r.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RedisClient: rdb,
		Limit:       20,
		Window:      time.Second,
	}))

	r.GET("/health", func(c *gin.Context) {
		checks := gin.H{"postgres": "ok", "redis": "ok", "rabbitmq": "ok"}
		status := http.StatusOK
		if sqlDB, err := db.DB(); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if conn.IsClosed() {
			checks["rabbitmq"] = "connection closed"
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
	})
	r.GET("/prometheus", gin.WrapH(promhttp.Handler()))

	handler := v1.NewJobHandler(engine, results)
	handler.Register(r.Group("/api/v1"))

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	engine.Stop()
	log.Info("stopped")
}

func loadConfig() Config {
	if err := godotenv.Load("./.env.local"); err != nil {
		logrus.Info("no .env file found, using OS environment")
	}
	mustGetEnv := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			logrus.Fatalf("environment variable %s is not set", key)
		}
		return val
	}
	intEnv := func(key string, def int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			logrus.Fatalf("invalid %s value: %v", key, err)
		}
		return n
	}

	rabbitMQURL := "amqp://" + mustGetEnv("RABBITMQ_USER") + ":" + mustGetEnv("RABBITMQ_PASSWORD") +
		"@" + mustGetEnv("RABBITMQ_HOST") + ":" + mustGetEnv("RABBITMQ_PORT") + "/"

	return Config{
		HTTPAddr:  ":" + envOr("HTTP_PORT", "8080"),
		Workers:   intEnv("JOB_WORKERS", 4),
		QueueSize: intEnv("JOB_QUEUE_SIZE", 64),

		RedisAddr: mustGetEnv("REDIS_HOST") + ":" + mustGetEnv("REDIS_PORT"),
		RedisDB:   intEnv("REDIS_DB", 0),

		PSQLHost:     mustGetEnv("PSQL_HOST"),
		PSQLPort:     intEnv("PSQL_PORT", 5432),
		PSQLUser:     mustGetEnv("PSQL_USER"),
		PSQLPassword: mustGetEnv("PSQL_PASSWORD"),
		PSQLDBName:   mustGetEnv("PSQL_DB"),
		PSQLSSLMode:  mustGetEnv("PSQL_SSLMODE"),

		S3Host:      mustGetEnv("S3_HOST") + ":" + mustGetEnv("S3_PORT"),
		S3Bucket:    mustGetEnv("S3_BUCKET"),
		S3AccessKey: mustGetEnv("S3_ACCESS_KEY"),
		S3SecretKey: mustGetEnv("S3_SECRET_KEY"),

		RabbitMQURL: rabbitMQURL,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
