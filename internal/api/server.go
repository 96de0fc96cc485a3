// Package api exposes intake, the emergency lifecycle, service availability and the
// notification engine over HTTP and WebSocket.
package api

import (
	"context"
	"net/http"
	"time"

	"rapidresponse/internal/common/config"
	"rapidresponse/internal/common/logger"
	"rapidresponse/internal/intake"
	"rapidresponse/internal/models"
	"rapidresponse/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const defaultMaxAudioBytes = 10 << 20

type ReportProcessor interface {
	ProcessReport(ctx context.Context, r intake.Report) (*models.Emergency, error)
}

type EmergencyService interface {
	Get(ctx context.Context, id string) (*models.Emergency, error)
	UpdateStatus(ctx context.Context, id, status, notes string) (*models.Emergency, error)
	UpdateNotes(ctx context.Context, id, notes string) (*models.Emergency, error)
	StatusHistory(ctx context.Context, id string) ([]models.EmergencyStatusUpdate, error)
	History(ctx context.Context, f models.HistoryFilter) ([]models.Emergency, error)
	Stats(ctx context.Context, period string) (*models.EmergencyStats, error)
}

type AvailabilityService interface {
	List(ctx context.Context) ([]models.ServiceAvailability, error)
	Upsert(ctx context.Context, a models.ServiceAvailability) (*models.ServiceAvailability, error)
}

type NotificationService interface {
	Subscribe(ctx context.Context, req notification.SubscribeRequest) (*models.NotificationSubscription, error)
	ListForSubscriber(ctx context.Context, subscriberType, subscriberID string) ([]models.Notification, error)
	Acknowledge(ctx context.Context, id string) (*models.Notification, error)
	Connect(clientID string, conn notification.Conn) (func(), error)
}

type Dependencies struct {
	Intake        ReportProcessor
	Emergencies   EmergencyService
	Availability  AvailabilityService
	Notifications NotificationService
}

type Server struct {
	router        *gin.Engine
	deps          Dependencies
	upgrader      websocket.Upgrader
	maxAudioBytes int64
	pingInterval  time.Duration
	now           func() time.Time
	logger        logger.Logger
}

func NewServer(deps Dependencies, cfg *config.Config, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		maxAudioBytes: cfg.Server.MaxAudioBytes,
		pingInterval:  config.GetDuration(cfg.Live.PingInterval),
		now:           time.Now,
		logger:        log.WithFields(map[string]interface{}{"component": "api"}),
	}
	if s.maxAudioBytes <= 0 {
		s.maxAudioBytes = defaultMaxAudioBytes
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 30 * time.Second
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(metricsMiddleware())

	s.router.GET("/health", s.healthCheck)

	em := s.router.Group("/emergency")
	{
		em.POST("/report", s.submitReport)
		em.GET("/history", s.emergencyHistory)
		em.GET("/stats", s.emergencyStats)
		em.GET("/:id", s.getEmergency)
		em.PUT("/:id", s.updateEmergency)
		em.GET("/:id/updates", s.statusUpdates)
	}

	n := s.router.Group("/notifications")
	{
		n.POST("/subscribe", s.subscribe)
		n.GET("/:subscriber_id", s.listNotifications)
		n.POST("/:id/ack", s.acknowledge)
	}

	svc := s.router.Group("/services")
	{
		svc.GET("/status", s.listServiceStatus)
		svc.PUT("/:type/status", s.updateServiceStatus)
	}

	s.router.GET("/ws/:client_id", s.liveConnect)
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
