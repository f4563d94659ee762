// Package server hosts the /api/translate proxy in front of the upstream
// models.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/valpere/codeconvert/internal"
	"github.com/valpere/codeconvert/internal/config"
	"github.com/valpere/codeconvert/internal/language"
	"github.com/valpere/codeconvert/internal/orchestrator"
	"github.com/valpere/codeconvert/internal/postprocess"
	"github.com/valpere/codeconvert/internal/translator"
	"github.com/valpere/codeconvert/internal/validator"
	"github.com/valpere/codeconvert/pkg/logger"
)

// Opener opens an upstream stream. *orchestrator.Orchestrator implements it.
type Opener interface {
	Open(ctx context.Context, body translator.TranslateBody) (*orchestrator.Result, error)
}

// Memory caches finished translations and records requests. *store.Store
// implements it.
type Memory interface {
	GetCachedTranslation(ctx context.Context, inputCode, inputLanguage, outputLanguage string) (string, bool, error)
	SaveToMemory(ctx context.Context, inputCode, inputLanguage, outputLanguage, outputCode, provider string) error
	SaveRequest(ctx context.Context, rec internal.TranslationRecord) error
}

type Server struct {
	router        *gin.Engine
	opener        Opener
	memory        Memory
	validator     *validator.Validator
	stripThinking bool
}

// New builds the router. memory may be nil to run without a cache.
func New(cfg *config.Config, opener Opener, memory Memory) *Server {
	s := &Server{
		opener:        opener,
		memory:        memory,
		validator:     validator.New(cfg.Server.MaxInputLength).Strict(),
		stripThinking: cfg.Server.StripThinking,
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Warnf("ignoring trusted proxies: %v", err)
		_ = router.SetTrustedProxies(nil)
	}
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	api := router.Group("/api")
	{
		api.GET("/languages", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"languages": language.All()})
		})

		handlers := []gin.HandlerFunc{s.translate}
		if cfg.RateLimit.Enabled {
			rl := NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
			handlers = append([]gin.HandlerFunc{rl.Middleware()}, handlers...)
		}
		api.POST("/translate", handlers...)
	}

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) translate(c *gin.Context) {
	start := time.Now()
	rec := internal.TranslationRecord{
		ID:        requestID(c),
		Timestamp: start,
	}
	defer func() {
		rec.Latency = time.Since(start)
		s.record(c.Request.Context(), rec)
	}()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes(s.validator.MaxLength()))

	var body translator.TranslateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		rec.Status = internal.StatusInvalid
		rec.Error = err.Error()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":  "Request body is too large.",
				"reason": "body_too_large",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Invalid request body.",
			"reason": "malformed_body",
		})
		return
	}
	rec.InputCode = body.InputCode
	rec.InputLanguage = body.InputLanguage
	rec.OutputLanguage = body.OutputLanguage

	if err := s.validator.Validate(body); err != nil {
		rec.Status = internal.StatusInvalid
		rec.Error = err.Error()
		reason := "invalid"
		var verr *validator.Error
		if errors.As(err, &verr) {
			reason = verr.Reason.String()
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  err.Error(),
			"reason": reason,
		})
		return
	}

	if s.memory != nil {
		cached, found, err := s.memory.GetCachedTranslation(c.Request.Context(), body.InputCode, body.InputLanguage, body.OutputLanguage)
		if err != nil {
			logger.Warnf("cache lookup failed: %v", err)
		} else if found {
			// Entries saved with the filter off may still carry reasoning.
			if s.stripThinking {
				cached = postprocess.Clean(cached)
			}
			rec.Status = internal.StatusCached
			rec.OutputLength = len(cached)
			c.Header("X-Cache", "hit")
			w := NewTextStreamWriter(c.Writer)
			if err := w.Write(cached); err != nil {
				logger.Warnf("failed to write cached translation: %v", err)
			}
			return
		}
	}

	res, err := s.opener.Open(c.Request.Context(), body)
	if err != nil {
		rec.Status = internal.StatusFailed
		rec.Error = err.Error()
		logger.Errorf("failed to open upstream stream: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":  "No translation provider is available.",
			"reason": "upstream_unavailable",
		})
		return
	}
	defer res.Stream.Close()
	rec.Provider = res.Provider

	c.Header("X-Cache", "miss")
	c.Header("X-Provider", res.Provider)
	c.Header("X-Upstream-Attempts", strconv.Itoa(res.Attempts))
	c.Set(providerKey, res.Provider)
	c.Set(attemptsKey, res.Attempts)
	w := NewTextStreamWriter(c.Writer)
	w.Start()

	var filter *postprocess.ThinkingFilter
	if s.stripThinking {
		filter = &postprocess.ThinkingFilter{}
	}

	var sb strings.Builder
	emit := func(text string) error {
		if text == "" {
			return nil
		}
		if err := w.Write(text); err != nil {
			return err
		}
		sb.WriteString(text)
		return nil
	}

	rec.Status = internal.StatusCompleted
	for {
		chunk, err := res.Stream.Recv()
		if err == io.EOF {
			if filter != nil {
				if err := emit(filter.Flush()); err != nil {
					rec.Status = internal.StatusTruncated
					rec.Error = err.Error()
				}
			}
			break
		}
		if err != nil {
			// Headers are gone already; the client sees a short body.
			rec.Status = internal.StatusTruncated
			rec.Error = err.Error()
			logger.Warnf("%s: stream ended early: %v", res.Provider, err)
			break
		}
		if filter != nil {
			chunk = filter.Push(chunk)
		}
		if err := emit(chunk); err != nil {
			rec.Status = internal.StatusTruncated
			rec.Error = err.Error()
			logger.Warnf("client went away: %v", err)
			break
		}
	}
	rec.OutputLength = sb.Len()

	if rec.Status == internal.StatusCompleted && s.memory != nil && sb.Len() > 0 {
		if err := s.memory.SaveToMemory(context.WithoutCancel(c.Request.Context()), body.InputCode, body.InputLanguage, body.OutputLanguage, sb.String(), res.Provider); err != nil {
			logger.Warnf("failed to save translation to memory: %v", err)
		}
	}
}

// maxBodyBytes bounds a request body for inputs of up to maxUnits UTF-16
// units. A fully \u-escaped input takes six bytes per unit.
func maxBodyBytes(maxUnits int) int64 {
	return int64(maxUnits)*6 + 4096
}

func (s *Server) record(ctx context.Context, rec internal.TranslationRecord) {
	if s.memory == nil {
		return
	}
	if err := s.memory.SaveRequest(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warnf("failed to record request %s: %v", rec.ID, err)
	}
}
