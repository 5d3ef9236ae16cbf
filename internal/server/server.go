package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
	"sunkelo/internal/stream"
)

const defaultMaxAudioBytes = 10 << 20

// QueryPipeline is the use case the transport drives.
type QueryPipeline interface {
	Run(ctx context.Context, in domain.QueryInput, w *stream.Writer) error
	CollectSources(ctx context.Context, productName string) []domain.NormalizedSource
}

// Deps wires the HTTP layer.
type Deps struct {
	Pipeline QueryPipeline
	Assets   ports.AudioAssetRepository
	Health   map[string]ports.HealthChecker
	Metrics  http.Handler
	Config   config.ServerConfig
	Logger   *slog.Logger
}

// Server exposes the query stream and its supporting endpoints.
type Server struct {
	pipeline QueryPipeline
	assets   ports.AudioAssetRepository
	health   map[string]ports.HealthChecker
	metrics  http.Handler
	cfg      config.ServerConfig
	logger   *slog.Logger
}

// New builds the server. Nil collaborators disable their endpoints.
func New(deps Deps) *Server {
	cfg := deps.Config
	if cfg.MaxAudioBytes <= 0 {
		cfg.MaxAudioBytes = defaultMaxAudioBytes
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = stream.DefaultBuffer
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		pipeline: deps.Pipeline,
		assets:   deps.Assets,
		health:   deps.Health,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog())

	api := router.Group("/api")
	api.POST("/query", s.query)
	api.POST("/sources", s.sources)
	api.GET("/audio/:audioKey", s.audio)
	api.GET("/health", s.healthCheck)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}
	return router
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) query(c *gin.Context) {
	in := s.readQuery(c)
	in.CallerHash = CallerHash(c.Request)

	w := stream.NewWriter(s.cfg.EventBuffer)
	ctx := context.WithoutCancel(c.Request.Context())
	go stream.Run(ctx, w, s.logger, func(ctx context.Context, w *stream.Writer) error {
		return s.pipeline.Run(ctx, in, w)
	})

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	gone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if err := stream.Encode(c.Writer, ev); err != nil {
				s.logger.Debug("stream write failed", "error", err)
				w.Detach()
				return
			}
			c.Writer.Flush()
		case <-gone:
			w.Detach()
			return
		}
	}
}

type textQuery struct {
	Text string `json:"text"`
}

// readQuery never fails; a malformed request is carried to the pipeline as InputError.
func (s *Server) readQuery(c *gin.Context) domain.QueryInput {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))

	if mediaType == "multipart/form-data" {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxAudioBytes+1<<20)
		header, err := c.FormFile("audio")
		if err != nil {
			return domain.QueryInput{InputError: errors.New("audio file is required")}
		}
		if header.Size > s.cfg.MaxAudioBytes {
			return domain.QueryInput{InputError: fmt.Errorf("audio exceeds %d bytes", s.cfg.MaxAudioBytes)}
		}
		file, err := header.Open()
		if err != nil {
			return domain.QueryInput{InputError: errors.New("audio file is unreadable")}
		}
		defer file.Close()

		audio, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxAudioBytes+1))
		switch {
		case err != nil:
			return domain.QueryInput{InputError: errors.New("audio file is unreadable")}
		case int64(len(audio)) > s.cfg.MaxAudioBytes:
			return domain.QueryInput{InputError: fmt.Errorf("audio exceeds %d bytes", s.cfg.MaxAudioBytes)}
		case len(audio) == 0:
			return domain.QueryInput{InputError: errors.New("audio file is empty")}
		}
		return domain.QueryInput{Audio: audio}
	}

	var req textQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		return domain.QueryInput{InputError: errors.New("request must be JSON {text} or multipart audio")}
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return domain.QueryInput{InputError: errors.New("text is required")}
	}
	return domain.QueryInput{Text: text}
}

type sourcesRequest struct {
	Product     string `json:"product"`
	ProductSlug string `json:"productSlug"`
}

func (s *Server) sources(c *gin.Context) {
	var req sourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	product := strings.TrimSpace(req.Product)
	slug := domain.ToSlug(req.ProductSlug)
	switch {
	case product == "" && slug == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "product or productSlug required"})
		return
	case product == "":
		product = domain.SlugToProductName(slug)
	case slug == "":
		slug = domain.ToSlug(product)
	}

	sources := s.pipeline.CollectSources(c.Request.Context(), product)
	if sources == nil {
		sources = []domain.NormalizedSource{}
	}
	c.JSON(http.StatusOK, gin.H{
		"product":     product,
		"productSlug": slug,
		"sources":     sources,
		"sourceCount": len(sources),
	})
}

func (s *Server) audio(c *gin.Context) {
	key := strings.TrimSpace(c.Param("audioKey"))
	if key == "" || s.assets == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	asset, err := s.assets.GetAsset(c.Request.Context(), key)
	if err != nil {
		s.logger.Warn("audio lookup failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if asset == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, asset.MimeType, asset.Data)
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, checker := range s.health {
		if err := checker.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// CallerHash identifies the caller for quota accounting without storing the address.
func CallerHash(r *http.Request) string {
	identity := "unknown"
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			identity = first
		}
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		identity = host
	} else if r.RemoteAddr != "" {
		identity = r.RemoteAddr
	}

	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}
