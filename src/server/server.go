package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"quote-streamer/src/interfaces"
	"quote-streamer/src/logger"
	"quote-streamer/src/models"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// QuoteServer serves the live quote dashboard: REST reads, symbol set control
// and a WebSocket feed of published snapshots.
// -----------------------------------------------------------------------------

type QuoteServer struct {
	Config *models.MConfig
	Logger *logger.Logger
	engine *gin.Engine
	http   *http.Server

	stream interfaces.IQuoteStream
	store  interfaces.IQuoteStore // nil when storage is disabled

	// WebSocket clients, owned by the hub loop
	clients    map[*Client]struct{}
	broadcast  chan *models.MQuoteMessage
	register   chan *Client
	unregister chan *Client
	direct     chan directMessage
	quit       chan struct{}
	hubDone    chan struct{}
	stopOnce   sync.Once

	connMutex   sync.RWMutex
	connections int
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewQuoteServer(cfg *models.MConfig, logger *logger.Logger, stream interfaces.IQuoteStream, store interfaces.IQuoteStore) *QuoteServer {
	if strings.ToUpper(cfg.LogLevel) != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &QuoteServer{
		Config:  cfg,
		Logger:  logger,
		engine:  gin.New(),
		stream:  stream,
		store:   store,
		clients: make(map[*Client]struct{}),
		// bursts of frames queue here instead of blocking the aggregator
		broadcast:  make(chan *models.MQuoteMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan directMessage),
		quit:       make(chan struct{}),
		hubDone:    make(chan struct{}),
	}

	s.http = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.engine,
	}

	s.engine.Use(gin.Recovery())

	// CORS for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *QuoteServer) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/quotes", s.getQuotes)
	api.GET("/quotes/:symbol", s.getQuote)
	api.GET("/store/quotes", s.getStoredQuotes)
	api.GET("/symbols", s.getSymbols)
	api.PUT("/symbols", s.putSymbols)
	api.GET("/health", s.getHealth)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// Start runs the hub and serves HTTP until Stop. It returns nil after a clean stop.
func (s *QuoteServer) Start() error {
	s.Logger.Info("QuoteServer : starting server on %s", s.http.Addr)

	go s.handleWebsockets()

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("dashboard server failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop shuts the HTTP server down and disconnects every WebSocket client
func (s *QuoteServer) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		err = s.http.Shutdown(ctx)
		close(s.quit)
	})
	return err
}

// -----------------------------------------------------------------------------

// Handler exposes the router
func (s *QuoteServer) Handler() http.Handler {
	return s.engine
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *QuoteServer) getQuotes(c *gin.Context) {
	c.JSON(http.StatusOK, s.stream.Snapshot())
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) getQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	record, ok := s.stream.Snapshot()[symbol]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("symbol '%s' is not subscribed", symbol)})
		return
	}
	c.JSON(http.StatusOK, record)
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) getStoredQuotes(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "storage is disabled"})
		return
	}

	quotes, err := s.store.LoadQuotes()
	if err != nil {
		s.Logger.Error("QuoteServer : failed to load stored quotes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stored quotes"})
		return
	}
	c.JSON(http.StatusOK, quotes)
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) getSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.stream.Symbols()})
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) putSymbols(c *gin.Context) {
	var req models.MSymbolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	s.stream.SetSymbols(req.Symbols)
	s.Logger.Info("QuoteServer : symbol set replaced (%d symbols)", len(req.Symbols))
	c.JSON(http.StatusOK, gin.H{"symbols": s.stream.Symbols()})
}

// -----------------------------------------------------------------------------

func (s *QuoteServer) getHealth(c *gin.Context) {
	s.connMutex.RLock()
	connections := s.connections
	s.connMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"stream":      s.stream.Status(),
	})
}
