// Package api exposes the HTTP surface: session creation, the duplex
// stream, language detection, breakpoint prediction, insights, health and
// metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Pratham2994/OmniCompiler/internal/detect"
	"github.com/Pratham2994/OmniCompiler/internal/insight"
	"github.com/Pratham2994/OmniCompiler/internal/logging"
	"github.com/Pratham2994/OmniCompiler/internal/metrics"
	"github.com/Pratham2994/OmniCompiler/internal/predict"
	"github.com/Pratham2994/OmniCompiler/internal/sandbox"
	"github.com/Pratham2994/OmniCompiler/internal/session"
	"github.com/Pratham2994/OmniCompiler/internal/supervisor"
)

// API bundles the service dependencies behind the HTTP layer.
type API struct {
	Registry   *session.Registry
	Launcher   *sandbox.Launcher
	Supervisor *supervisor.Supervisor
	Predictor  *predict.Predictor
	Insight    *insight.Client

	CreateRatePerMin int
	PrepareTimeout   time.Duration
}

// NewRouter mounts all routes on a fresh gin engine.
func NewRouter(a *API) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())

	limiter := newIPRateLimiter(a.CreateRatePerMin, a.CreateRatePerMin)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": a.Registry.Len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/run", limiter.middleware(), a.createRun)
	r.GET("/ws/run/:sid", a.attachSession)
	r.GET("/ws/echo", a.wsEcho)

	r.POST("/detect", a.detectLanguage)
	r.POST("/breakpoints/predict", a.predictBreakpoints)
	r.POST("/insight", a.generateInsight)

	return r
}

type runRequest struct {
	Lang        string               `json:"lang"`
	Entry       string               `json:"entry"`
	Args        []string             `json:"args"`
	Files       []session.FileSpec   `json:"files"`
	Mode        string               `json:"mode"`
	Breakpoints []session.Breakpoint `json:"breakpoints"`
}

type runResponse struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, gin.H{"detail": detail})
}

// validateRun enforces the request policy before any workdir exists: no
// rejection may leave files on disk.
func validateRun(req *runRequest) (lang, mode string, detail string) {
	mode = strings.ToLower(strings.TrimSpace(req.Mode))
	if mode == "" {
		mode = session.ModeRun
	}
	if mode != session.ModeRun && mode != session.ModeDebug {
		return "", "", fmt.Sprintf("unsupported mode: %q. Choose one of: debug, run", req.Mode)
	}

	lang = strings.ToLower(strings.TrimSpace(req.Lang))
	if !session.AllowedLangs[lang] {
		return "", "", fmt.Sprintf("unsupported language: %q. Choose one of: cpp, go, java, javascript, python", req.Lang)
	}

	for _, f := range req.Files {
		if !session.SafeName.MatchString(f.Name) {
			return "", "", "invalid filename: " + f.Name
		}
	}
	if !session.SafeName.MatchString(req.Entry) {
		return "", "", "invalid entry: " + req.Entry
	}

	names := make(map[string]bool, len(req.Files))
	for _, f := range req.Files {
		names[f.Name] = true
	}
	if !names[req.Entry] {
		return "", "", "entry file not found: " + req.Entry
	}

	if len(req.Files) > session.MaxFiles {
		return "", "", fmt.Sprintf("too many files (>%d)", session.MaxFiles)
	}
	for _, f := range req.Files {
		if len(f.Content) > session.MaxBytesPerFile {
			return "", "", "file too large: " + f.Name
		}
	}

	for _, bp := range req.Breakpoints {
		if !session.SafeName.MatchString(bp.File) {
			return "", "", "invalid breakpoint file: " + bp.File
		}
		if bp.Line <= 0 {
			return "", "", fmt.Sprintf("invalid breakpoint line: %d", bp.Line)
		}
	}
	return lang, mode, ""
}

// createRun validates the request, registers a session and — for debug —
// eagerly compiles and spawns the backend so startup failures surface here
// instead of on the stream.
func (a *API) createRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	lang, mode, detail := validateRun(&req)
	if detail != "" {
		badRequest(c, detail)
		return
	}

	sess := &session.Session{
		Lang:        lang,
		Entry:       req.Entry,
		Args:        req.Args,
		Files:       req.Files,
		Mode:        mode,
		Breakpoints: req.Breakpoints,
	}

	if mode == session.ModeDebug {
		ctx, cancel := context.WithTimeout(c.Request.Context(), a.PrepareTimeout)
		defer cancel()

		workdir, handle, err := a.Launcher.PrepareDebug(ctx, sess)
		if err != nil {
			status := http.StatusInternalServerError
			var compileErr *sandbox.CompileError
			var reqErr *sandbox.RequestError
			if errors.As(err, &compileErr) || errors.As(err, &reqErr) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"detail": err.Error()})
			return
		}
		sess.Workdir = workdir
		sess.Debug = handle
		sess.State = session.StateDebugReady
	}

	a.Registry.Create(sess)
	metrics.Get().SessionsCreated.WithLabelValues(lang, mode).Inc()
	logging.L().Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("lang", lang),
		zap.String("mode", mode),
	)

	c.JSON(http.StatusOK, runResponse{
		SessionID: sess.ID,
		WSURL:     buildWSURL(c, sess.ID),
	})
}

func buildWSURL(c *gin.Context, sid string) string {
	scheme := "ws"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws/run/%s", scheme, c.Request.Host, sid)
}

type detectRequest struct {
	Code string `json:"code"`
}

func (a *API) detectLanguage(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	c.JSON(http.StatusOK, detect.Classify(req.Code))
}

type predictRequest struct {
	Lang string           `json:"lang"`
	File session.FileSpec `json:"file"`
}

func (a *API) predictBreakpoints(c *gin.Context) {
	if !a.Predictor.Enabled() {
		c.JSON(http.StatusNotImplemented, gin.H{"detail": "breakpoint prediction not configured"})
		return
	}
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	lines, err := a.Predictor.Predict(c.Request.Context(), strings.ToLower(req.Lang), req.File.Name, req.File.Content)
	if err != nil {
		msg := err.Error()
		status := http.StatusInternalServerError
		if strings.HasPrefix(msg, "invalid filename") ||
			strings.HasPrefix(msg, "file too large") ||
			strings.HasPrefix(msg, "unsupported language") {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"detail": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakpoints": lines})
}

type insightRequest struct {
	Code     string `json:"code"`
	Question string `json:"question"`
}

func (a *API) generateInsight(c *gin.Context) {
	if a.Insight == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "insight service not configured"})
		return
	}
	var req insightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	prompt := req.Question
	if req.Code != "" {
		prompt = fmt.Sprintf("%s\n\n```\n%s\n```", req.Question, req.Code)
	}
	text, err := a.Insight.Generate(c.Request.Context(), prompt)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight": text})
}
