package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sealflow/sealflow/backend/go-services/handlers"
	"github.com/sealflow/sealflow/backend/go-services/internal/audit"
	"github.com/sealflow/sealflow/backend/go-services/internal/config"
	"github.com/sealflow/sealflow/backend/go-services/internal/database"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope/repository"
	"github.com/sealflow/sealflow/backend/go-services/internal/ids"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/oidc"
	"github.com/sealflow/sealflow/backend/go-services/internal/rules"
	"github.com/sealflow/sealflow/backend/go-services/internal/sessions"
	"github.com/sealflow/sealflow/backend/go-services/internal/signing"
	"github.com/sealflow/sealflow/backend/go-services/internal/storage"
	"github.com/sealflow/sealflow/backend/go-services/internal/users"
	"github.com/sealflow/sealflow/backend/go-services/internal/workflow"
	"github.com/sealflow/sealflow/backend/go-services/pkg/logger"
	"github.com/sealflow/sealflow/backend/go-services/pkg/metrics"
	"github.com/sealflow/sealflow/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: keycloak=%v mongo=%v redis=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "")

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple; production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// shared runtime vars used by handlers/readiness
	var verifier middleware.Verifier
	var userSvc *users.Service
	var sessionsSvc *sessions.Service
	var workflowSvc *workflow.Service
	var inviteSvc *invitations.Service

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// Connect to Redis early so the rate limiter, token cache and session
	// blacklist can use it when configured
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(context.Background()).Err(); err == nil {
			// expose Redis client for blacklist checks (session wiring happens later)
			sessions.SetBlacklistClient(redisClient)
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		} else {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint: return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		// the workflow service requires MongoDB, so it stands in for storage readiness
		deps["workflow"] = workflowSvc != nil
		if workflowSvc == nil {
			ready = false
		}
		deps["users"] = userSvc != nil
		deps["sessions"] = sessionsSvc != nil

		// OIDC readiness: if Keycloak URL was configured we expect a verifier (or ALLOW_INSECURE_TOKEN)
		if cfg.Keycloak.URL != "" {
			deps["oidc"] = verifier != nil
			if verifier == nil {
				ready = false
			}
		} else {
			deps["oidc"] = true
		}

		// Redis readiness when used for the rate limiter
		if cfg.Redis.Host != "" && cfg.RateLimit.UseRedis {
			deps["redis"] = redisClient != nil
			if redisClient == nil {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": fmt.Sprintf("%s", time.Since(startTime))})
	})

	// Keycloak OIDC verifier for the owner-facing API
	ctx := context.Background()
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" && cfg.Keycloak.Realm != "" {
		issuer := strings.TrimRight(cfg.Keycloak.URL, "/") + "/realms/" + cfg.Keycloak.Realm
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	// Optional insecure verifier for integration tests: parse token claims without signature verification
	if verifier == nil {
		val := strings.ToLower(strings.TrimSpace(os.Getenv("ALLOW_INSECURE_TOKEN")))
		if val == "true" {
			logger.Warn("enabling insecure OIDC verifier (integration mode)")
			verifier = oidc.NewInsecureVerifier()
		}
	}

	// Prefer Redis-based sessions when configured (fast, in-memory)
	if redisClient != nil {
		sessionsSvc = sessions.NewService(sessions.NewRedisRepository(redisClient, "session:"))
		logger.Infof("Using Redis for session storage")
	}

	// MongoDB-backed persistence: envelopes, signers, signatures, invitation
	// tokens, audit trail, users and sessions all live in one database.
	if cfg.MongoDB.URI != "" {
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)

			userSvc = users.NewService(users.NewMongoUserRepository(db.Collection("users")))
			// only create a Mongo-backed session repo when Redis didn't already provide one
			if sessionsSvc == nil {
				sessionsSvc = sessions.NewService(sessions.NewMongoRepository(db.Collection("sessions")))
			}

			var inviteRepo invitations.Repository = invitations.NewMongoRepository(db.Collection("invitation_tokens"))
			if redisClient != nil {
				inviteRepo = invitations.NewCachedRepository(inviteRepo, redisClient, "invite:")
			}
			inviteSvc = invitations.NewService(inviteRepo)

			newAuditID := func() string {
				id, err := ids.New("aud")
				if err != nil {
					logger.Errorf("audit id generation: %v", err)
					return fmt.Sprintf("aud_%d", time.Now().UnixNano())
				}
				return id
			}

			workflowSvc = workflow.NewService(
				repository.NewMongoEnvelopes(db.Collection("envelopes")),
				repository.NewMongoSigners(db.Collection("signers")),
				repository.NewMongoSignatures(db.Collection("signatures")),
				inviteSvc,
				signing.NewLocalProvider([]byte(cfg.Signing.Key)),
				audit.NewRecorder(audit.NewMongoSink(db.Collection("audit_events")), newAuditID),
				workflow.Config{
					Rules: rules.Config{
						MaxResends:          cfg.Workflow.MaxResends,
						ReminderCooldown:    cfg.Workflow.ReminderCooldown,
						MaxProcessingTime:   cfg.Signing.MaxProcessingTime,
						AllowedAlgorithms:   cfg.Signing.AllowedAlgorithms,
						AllowedKMSKeys:      cfg.Signing.AllowedKMSKeys,
						MinSecurityLevel:    cfg.Signing.MinSecurityLevel,
						LegalValidityWindow: cfg.Signing.LegalValidityWindow,
						RetentionPeriod:     cfg.Signing.RetentionPeriod,
						TimestampMaxAge:     cfg.Signing.TimestampMaxAge,
					},
					InvitationTTL:    cfg.Workflow.InvitationTTL,
					DefaultAlgorithm: cfg.Signing.DefaultAlgorithm,
				},
			)
		}
	}

	// Optional MinIO-backed document/evidence storage
	var store *storage.MinIOStorage
	if mcfg := storage.LoadMinIOConfig(); mcfg.Endpoint != "" {
		s, err := storage.NewMinIOStorage(mcfg)
		if err != nil {
			logger.Warnf("minio unavailable, evidence download URLs disabled: %v", err)
		} else {
			store = s
		}
	}
	if workflowSvc != nil && store != nil {
		workflowSvc.WithEvidenceStore(store)
	}

	// Register auth handlers if services are available
	if userSvc != nil && sessionsSvc != nil {
		h := handlers.NewAuthHandler(cfg, userSvc, sessionsSvc)
		h.Register(r.Group("/"))
	} else {
		logger.Warnf("auth handlers not registered because user/sessions services are unavailable")
	}
	handlers.RegisterSwagger(r)

	// Envelope workflow API: public signer access routes plus the
	// authenticated owner-facing surface under /api
	if workflowSvc != nil {
		handlers.NewAccessHandler(cfg, workflowSvc, inviteSvc).RegisterAccessRoutes(r)

		api := r.Group("/api")
		if verifier != nil {
			api.Use(middleware.AuthMiddleware(verifier))
		}
		handlers.NewEnvelopeHandler(workflowSvc, store).RegisterEnvelopeRoutes(api)

		// background sweep marks overdue envelopes EXPIRED and revokes their tokens
		if cfg.Workflow.ExpireSweepEvery > 0 {
			go func() {
				ticker := time.NewTicker(cfg.Workflow.ExpireSweepEvery)
				defer ticker.Stop()
				for range ticker.C {
					n, err := workflowSvc.ExpireOverdue(context.Background())
					if err != nil {
						logger.Errorf("expire sweep: %v", err)
						continue
					}
					if n > 0 {
						logger.Infof("expire sweep: %d envelopes expired", n)
					}
				}
			}()
		}
	} else {
		logger.Warnf("envelope handlers not registered because MongoDB is unavailable")
	}

	apiV1 := r.Group("/api/v1")
	if verifier != nil {
		apiV1.GET("/me", middleware.AuthMiddleware(verifier), func(c *gin.Context) {
			claims, _ := c.Get("claims")
			if userSvc != nil {
				if cm, ok := claims.(map[string]interface{}); ok {
					u, err := userSvc.UpsertFromClaims(c.Request.Context(), cm)
					if err == nil && u != nil {
						c.JSON(http.StatusOK, gin.H{"user": u})
						return
					}
				}
			}
			// fallback: return claims
			c.JSON(http.StatusOK, gin.H{"claims": claims})
		})
	} else {
		apiV1.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "OIDC not configured"})
		})
	}

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	// brief runtime configuration summary to help with debugging early exits
	logger.Infof("Config summary: keycloak=%v mongo=%v redis=%v jwt_secret_set=%v", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.JWT.Secret != "")
	logger.Debugf("services: user=%v sessions=%v workflow=%v verifier=%v", userSvc != nil, sessionsSvc != nil, workflowSvc != nil, verifier != nil)
	logger.Infof("Starting sealflow service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
