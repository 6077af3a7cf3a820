package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/internal/handler/ws"
	"RigWatch/internal/refdata"
	"RigWatch/internal/repository"
	xhttp "RigWatch/pkg/http"
	xlogger "RigWatch/pkg/logger"
)

// AlertsEchoHandler exposes the operator surface: alert queries, ack/resolve,
// reference-data reload, and the live alert feed.
type AlertsEchoHandler struct {
	logger   *xlogger.Logger
	alerts   domrepo.AlertLog
	refdata  []refdata.Reloadable
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewAlertsEchoHandler(logger *xlogger.Logger, alerts domrepo.AlertLog, hub *ws.Hub, stores ...refdata.Reloadable) *AlertsEchoHandler {
	return &AlertsEchoHandler{
		logger:  logger,
		alerts:  alerts,
		refdata: stores,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *AlertsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.GET("/alerts", h.List)
	g.GET("/alerts/:id", h.Get)
	g.POST("/alerts/:id/acknowledge", h.Acknowledge)
	g.POST("/alerts/:id/resolve", h.Resolve)
	g.POST("/refdata/reload", h.ReloadRefdata)

	e.GET("/ws/alerts", h.Subscribe)
}

func (h *AlertsEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":      "ok",
		"subscribers": h.hub.Subscribers(),
	})
}

func (h *AlertsEchoHandler) List(c echo.Context) error {
	req := &models.AlertListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	f := models.AlertFilter{
		SensorID:   req.SensorID,
		Severity:   req.Severity,
		Unresolved: req.Unresolved,
		Limit:      req.Limit,
	}
	// from/to accept RFC3339 or unix seconds.
	if t, ok := xhttp.ParseTime(req.From); ok {
		f.From = t
	}
	if t, ok := xhttp.ParseTime(req.To); ok {
		f.To = t
	}

	rows, err := h.alerts.List(c.Request().Context(), f)
	if err != nil {
		h.logger.Error("list alerts error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *AlertsEchoHandler) Get(c echo.Context) error {
	rec, err := h.alerts.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return xhttp.NotFoundResponse(c, "alert not found")
		}
		h.logger.Error("get alert error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, rec)
}

func (h *AlertsEchoHandler) Acknowledge(c echo.Context) error {
	req := &models.AcknowledgeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	eventID := c.Param("id")
	if err := h.alerts.Acknowledge(c.Request().Context(), eventID, req.AcknowledgedBy); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return xhttp.NotFoundResponse(c, "alert not found")
		}
		h.logger.Error("acknowledge alert error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("alert acknowledged",
		xlogger.String("event_id", eventID),
		xlogger.String("by", req.AcknowledgedBy),
	)
	return xhttp.NoContentResponse(c)
}

func (h *AlertsEchoHandler) Resolve(c echo.Context) error {
	eventID := c.Param("id")
	if err := h.alerts.Resolve(c.Request().Context(), eventID); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			return xhttp.NotFoundResponse(c, "alert not found")
		}
		h.logger.Error("resolve alert error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	h.logger.Info("alert resolved", xlogger.String("event_id", eventID))
	return xhttp.NoContentResponse(c)
}

func (h *AlertsEchoHandler) ReloadRefdata(c echo.Context) error {
	for _, s := range h.refdata {
		if err := s.Reload(c.Request().Context()); err != nil {
			h.logger.Error("refdata reload error", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	h.logger.Info("reference data reloaded on request")
	return xhttp.NoContentResponse(c)
}

func (h *AlertsEchoHandler) Subscribe(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade error", xlogger.Error(err))
		return err
	}
	client := ws.NewClient(h.hub, conn, h.logger)
	go client.WritePump()
	go client.ReadPump()
	return nil
}
