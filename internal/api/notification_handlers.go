package api

import (
	"net/http"
	"time"

	"rapidresponse/internal/models"
	"rapidresponse/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const maxInboundMessage = 4096

func (s *Server) subscribe(c *gin.Context) {
	var req notification.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid request body: "+err.Error())
		return
	}
	sub, err := s.deps.Notifications.Subscribe(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) listNotifications(c *gin.Context) {
	list, err := s.deps.Notifications.ListForSubscriber(c.Request.Context(), c.Query("subscriber_type"), c.Param("subscriber_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "count": len(list)})
}

func (s *Server) acknowledge(c *gin.Context) {
	n, err := s.deps.Notifications.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

type serviceStatusRequest struct {
	Status              string `json:"status"`
	AvailableUnits      int    `json:"available_units"`
	AverageResponseTime *int   `json:"average_response_time"`
}

func (s *Server) listServiceStatus(c *gin.Context) {
	list, err := s.deps.Availability.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": list})
}

func (s *Server) updateServiceStatus(c *gin.Context) {
	var req serviceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, "invalid request body: "+err.Error())
		return
	}
	a, err := s.deps.Availability.Upsert(c.Request.Context(), models.ServiceAvailability{
		ServiceType:         c.Param("type"),
		Status:              models.ServiceStatus(req.Status),
		AvailableUnits:      req.AvailableUnits,
		AverageResponseTime: req.AverageResponseTime,
		UpdatedAt:           s.now().UTC(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// liveConnect upgrades to a WebSocket and registers it for live pushes. The handler
// reads until the client goes away; inbound messages are ignored.
func (s *Server) liveConnect(c *gin.Context) {
	clientID := c.Param("client_id")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", map[string]interface{}{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return
	}

	release, err := s.deps.Notifications.Connect(clientID, conn)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer release()

	readWait := 2 * s.pingInterval
	conn.SetReadLimit(maxInboundMessage)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
	}
}
