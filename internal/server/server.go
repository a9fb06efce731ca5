// Package server assembles the HTTP server from its dependencies.
package server

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"royaltydesk/internal/ai"
	"royaltydesk/internal/config"
	"royaltydesk/internal/server/handlers"
	"royaltydesk/internal/store"
	"royaltydesk/internal/uploadcache"
)

// Server is the HTTP server.
type Server struct {
	router *gin.Engine
	store  *store.Store
	api    *handlers.Handler
}

// NewServer wires the store, the pending-upload cache and the optional AI
// suggester into the API handler.
func NewServer(cfg *config.AppConfig) *Server {
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	dataDir, err := config.EnsureDataDir(cfg)
	if err != nil {
		dataDir = cfg.Data.DataDir
	}
	dbPath := filepath.Join(dataDir, "royaltydesk.db")

	sqliteStore, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	var suggester handlers.Suggester
	if cfg.AI.Enabled {
		if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
			suggester = ai.NewSuggester(apiKey, cfg.AI.Model,
				time.Duration(cfg.AI.TimeoutSeconds)*time.Second)
		} else {
			log.Printf("GEMINI_API_KEY not set, AI suggestions disabled")
		}
	}

	uploads := uploadcache.New(time.Duration(cfg.Upload.TTLMinutes) * time.Minute)
	apiHandler := handlers.New(sqliteStore, uploads, suggester, cfg)

	s := &Server{
		router: gin.Default(),
		store:  sqliteStore,
		api:    apiHandler,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	api := s.router.Group("/api")
	{
		s.api.RegisterRoutes(api)
	}

	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "royaltydesk"})
	})
}

// Run starts the server on addr.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Close releases the server's resources.
func (s *Server) Close() error {
	return s.store.Close()
}

// Addr formats the listen address for a port.
func Addr(port int) string {
	return fmt.Sprintf(":%d", port)
}
