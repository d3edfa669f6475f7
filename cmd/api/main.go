package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classattend/internal/attendance"
	"classattend/internal/auth"
	"classattend/internal/config"
	"classattend/internal/facematch"
	"classattend/internal/httpmiddleware"
	"classattend/internal/identity"
	"classattend/internal/mailer"
	"classattend/internal/metrics"
	"classattend/internal/otp"
	"classattend/internal/queue"
	"classattend/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	idents := identity.NewRepository(db.Client)
	accounts := identity.NewService(idents)

	smtp := mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)

	var challenges otp.ChallengeStore
	if cfg.ChallengeBackend == "memory" {
		challenges = otp.NewMemoryChallengeStore()
	} else {
		challenges = otp.NewRedisChallengeStore(redisClient.Client, 2*cfg.OTPTTL)
	}
	engine := otp.NewEngine(idents, challenges, smtp, cfg.OTPTTL, cfg.OTPDigits)

	recorder := attendance.NewService(attendance.NewRepository(db.Client))

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classattend:marked")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/signup", func(c *gin.Context) {
		var req struct {
			Name     string `json:"name" binding:"required"`
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required,min=6"`
			Role     string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ident, err := accounts.Register(c.Request.Context(), req.Name, req.Email, req.Password, identity.Role(req.Role))
		if err != nil {
			if errors.Is(err, identity.ErrAlreadyExists) {
				c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		metrics.SignupsTotal.Inc()
		c.JSON(http.StatusCreated, gin.H{"user": ident})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ident, err := accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			metrics.LoginsTotal.WithLabelValues("password", "failed").Inc()
			switch {
			case errors.Is(err, identity.ErrNotFound):
				c.JSON(http.StatusForbidden, gin.H{"error": "user not registered"})
			case errors.Is(err, identity.ErrBadCredential):
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			default:
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "login unavailable"})
			}
			return
		}
		token, exp, err := auth.Issue(ident.ID, string(ident.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.TokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		metrics.LoginsTotal.WithLabelValues("password", "success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": exp.Unix(),
			"user":       gin.H{"id": ident.ID, "name": ident.Name, "role": ident.Role},
		})
	})

	r.POST("/v1/auth/logout", func(c *gin.Context) {
		// Tokens are bearer-only; discarding is the client's job.
		c.JSON(http.StatusOK, gin.H{"message": "logout successful"})
	})

	r.POST("/v1/auth/send-otp", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := engine.Issue(c.Request.Context(), req.Email); err != nil {
			metrics.OTPIssuedTotal.WithLabelValues("failed").Inc()
			if errors.Is(err, identity.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not registered"})
				return
			}
			log.Printf("otp issue failed for %s: %v", req.Email, err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not send code"})
			return
		}
		metrics.OTPIssuedTotal.WithLabelValues("ok").Inc()
		c.JSON(http.StatusOK, gin.H{"message": "code sent"})
	})

	r.POST("/v1/auth/login-otp", func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
			Code  string `json:"code" binding:"required"`
			Role  string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ident, err := engine.Redeem(c.Request.Context(), req.Email, req.Code, identity.Role(req.Role))
		if err != nil {
			status, msg, label := redeemFailure(err)
			metrics.OTPRedeemedTotal.WithLabelValues(label).Inc()
			metrics.LoginsTotal.WithLabelValues("otp", "failed").Inc()
			c.JSON(status, gin.H{"error": msg})
			return
		}
		token, exp, err := auth.Issue(ident.ID, string(ident.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.TokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		metrics.OTPRedeemedTotal.WithLabelValues("ok").Inc()
		metrics.LoginsTotal.WithLabelValues("otp", "success").Inc()
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_at": exp.Unix(),
			"user":       gin.H{"id": ident.ID, "name": ident.Name, "role": ident.Role},
		})
	})

	authed := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))

	authed.POST("/faces/enroll", auth.RequireRole(string(identity.RoleStudent)), func(c *gin.Context) {
		var req struct {
			Descriptor []float64 `json:"descriptor" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims := auth.FromContext(c)
		if err := accounts.EnrollFace(c.Request.Context(), claims.IdentityID, req.Descriptor, cfg.FaceDescriptorDim); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "face enrolled"})
	})

	authed.POST("/attendance/face", auth.RequireRole(string(identity.RoleStudent)), func(c *gin.Context) {
		var req struct {
			Descriptor []float64 `json:"descriptor" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "face descriptor is required"})
			return
		}
		claims := auth.FromContext(c)

		stored, err := idents.FaceTemplate(c.Request.Context(), claims.IdentityID)
		if err != nil {
			if errors.Is(err, identity.ErrNoEnrollment) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "no face data registered for this student"})
				return
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face data unavailable"})
			return
		}

		result, err := facematch.Verify(stored, req.Descriptor, cfg.FaceThreshold)
		if err != nil {
			metrics.FaceVerificationsTotal.WithLabelValues("error").Inc()
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !result.Match {
			metrics.FaceVerificationsTotal.WithLabelValues("no_match").Inc()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "face does not match", "distance": result.Distance})
			return
		}
		metrics.FaceVerificationsTotal.WithLabelValues("match").Inc()

		rec, already, err := markAndNotify(c.Request.Context(), recorder, idents, q, claims.IdentityID, attendance.StatusPresent)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not mark attendance"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"attendance":     rec,
			"already_marked": already,
			"distance":       result.Distance,
		})
	})

	authed.POST("/attendance/mark", func(c *gin.Context) {
		var req struct {
			Status string `json:"status"`
		}
		_ = c.ShouldBindJSON(&req) // status is optional, default Present

		claims := auth.FromContext(c)
		rec, already, err := markAndNotify(c.Request.Context(), recorder, idents, q, claims.IdentityID, attendance.Status(req.Status))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not mark attendance"})
			return
		}
		status := http.StatusCreated
		if already {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{"attendance": rec, "already_marked": already})
	})

	authed.GET("/attendance/my", func(c *gin.Context) {
		claims := auth.FromContext(c)
		records, err := recorder.History(c.Request.Context(), claims.IdentityID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not load attendance"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	authed.POST("/attendance/identify", auth.RequireRole(string(identity.RoleTeacher)), func(c *gin.Context) {
		var req struct {
			Descriptor []float64 `json:"descriptor" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "face descriptor is required"})
			return
		}

		gallery, err := idents.FaceGallery(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gallery unavailable"})
			return
		}

		best, err := facematch.IdentifyBest(req.Descriptor, gallery, cfg.FaceThreshold)
		if err != nil {
			switch {
			case errors.Is(err, facematch.ErrNoMatch):
				metrics.FaceVerificationsTotal.WithLabelValues("no_match").Inc()
				c.JSON(http.StatusNotFound, gin.H{"error": "no enrolled student matches"})
			case errors.Is(err, facematch.ErrNoEnrollment):
				c.JSON(http.StatusBadRequest, gin.H{"error": "no students enrolled"})
			default:
				metrics.FaceVerificationsTotal.WithLabelValues("error").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}
		metrics.FaceVerificationsTotal.WithLabelValues("match").Inc()

		rec, already, err := markAndNotify(c.Request.Context(), recorder, idents, q, best.Label, attendance.StatusPresent)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not mark attendance"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"identity_id":    best.Label,
			"distance":       best.Distance,
			"attendance":     rec,
			"already_marked": already,
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// markAndNotify records today's attendance and, for fresh records only,
// publishes a confirmation event for the notification worker. A publish
// failure is logged, never surfaced: the record is already durable.
func markAndNotify(ctx context.Context, recorder *attendance.Service, idents *identity.Repository, q queue.Queue, identityID string, status attendance.Status) (attendance.Record, bool, error) {
	rec, already, err := recorder.Mark(ctx, identityID, attendance.DayOf(time.Now()), status)
	if err != nil {
		return attendance.Record{}, false, err
	}
	if already {
		metrics.AttendanceMarkedTotal.WithLabelValues("already_marked").Inc()
		return rec, true, nil
	}
	metrics.AttendanceMarkedTotal.WithLabelValues("marked").Inc()

	ident, err := idents.FindByID(ctx, identityID)
	if err != nil {
		log.Printf("notify lookup failed for %s: %v", identityID, err)
		return rec, false, nil
	}
	evt := queue.MarkedEvent{
		RecordID:   rec.ID,
		IdentityID: rec.IdentityID,
		Email:      ident.Email,
		Name:       ident.Name,
		Day:        rec.Day,
		Status:     string(rec.Status),
	}
	if err := q.Publish(ctx, evt); err != nil {
		log.Printf("queue publish failed for record %s: %v", rec.ID, err)
	}
	return rec, false, nil
}

// redeemFailure maps an OTP redemption error to an HTTP status, a user
// message and a metric label.
func redeemFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return http.StatusNotFound, "user not registered", "not_found"
	case errors.Is(err, otp.ErrNoChallenge):
		return http.StatusUnauthorized, "no code requested", "no_challenge"
	case errors.Is(err, otp.ErrExpired):
		return http.StatusUnauthorized, "code expired, request a new one", "expired"
	case errors.Is(err, otp.ErrInvalidCode):
		return http.StatusUnauthorized, "invalid code", "invalid"
	default:
		return http.StatusServiceUnavailable, "login unavailable", "error"
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
