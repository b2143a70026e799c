// field-agent runs on the technician's device. It buffers mutations in a
// local sqlite queue while offline, watches connectivity, and drains the
// queue against the backend sync API when the network comes back.
//
// Usage:
//
//	SYNC_API_BASE_URL=https://api.example.com SYNC_API_TOKEN=... go run ./cmd/field-agent
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/fieldsync"
)

const defaultPort = "7070"

func main() {
	port := os.Getenv("AGENT_PORT")
	if port == "" {
		port = defaultPort
	}
	dataDir := os.Getenv("AGENT_DATA_DIR")
	if dataDir == "" {
		dataDir = "./fieldsync-data"
	}

	logger := config.GetLogger()

	store, err := fieldsync.OpenStore(dataDir)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "store"}).Fatal("failed to open queue store: " + err.Error())
	}
	defer store.Close()

	client, err := fieldsync.NewClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "client"}).Fatal(err.Error())
	}

	engine := fieldsync.NewEngine(store, client, logger)
	monitor := fieldsync.NewMonitor(engine, fieldsync.NewHTTPProber(), logger)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	go monitor.Run(sigCtx)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/status", func(c *gin.Context) {
		pending, err := store.PendingCount()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		failed, err := store.FailedOperations()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"online":  monitor.Online(),
			"pending": pending,
			"failed":  len(failed),
		})
	})

	r.POST("/operations", func(c *gin.Context) {
		var op fieldsync.QueuedOperation
		if err := c.ShouldBindJSON(&op); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if op.Entity == "" || op.Kind == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entity and kind are required"})
			return
		}
		id, err := store.Enqueue(&op)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if monitor.Online() {
			monitor.RequestDrain()
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id})
	})

	r.GET("/operations", func(c *gin.Context) {
		ops, err := store.ListAll()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"operations": ops})
	})

	r.GET("/operations/failed", func(c *gin.Context) {
		ops, err := store.FailedOperations()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"operations": ops})
	})

	r.POST("/operations/:id/retry", func(c *gin.Context) {
		if err := engine.RetryOperation(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	r.DELETE("/operations/failed", func(c *gin.Context) {
		n, err := engine.ClearFailedOperations()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": n})
	})

	r.POST("/drain", func(c *gin.Context) {
		monitor.RequestDrain()
		c.Status(http.StatusAccepted)
	})

	srv := &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{"field": "agent"}).Info("field agent listening on 127.0.0.1:", port)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}
