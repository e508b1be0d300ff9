// Package sos exposes the dispatch coordinator over HTTP with gin.
package sos

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apidispatch "github.com/kilianp07/sosdispatch/api/dispatch"
	"github.com/kilianp07/sosdispatch/connectors"
	"github.com/kilianp07/sosdispatch/core/dispatch"
	"github.com/kilianp07/sosdispatch/core/dispatch/logging"
	"github.com/kilianp07/sosdispatch/core/events"
	"github.com/kilianp07/sosdispatch/core/logger"
	"github.com/kilianp07/sosdispatch/core/model"
	"github.com/kilianp07/sosdispatch/core/sos"
	"github.com/kilianp07/sosdispatch/pkg/export"
)

// Coordinator is the subset of *sos.Coordinator served over HTTP.
type Coordinator interface {
	TriggerAlert(req sos.TriggerRequest) (model.Alert, error)
	ListAlerts(unreadOnly bool) []model.Alert
	GetAlert(id string) (model.Alert, error)
	MarkAlertRead(id string) (model.Alert, error)
	DismissAlert(id string) (model.Alert, error)
	Dispatch(id string, req dispatch.Request) (dispatch.Result, error)
	SetDispatchStatus(id, status string) (model.Alert, error)
	ListUnits() []model.PatrolUnit
	CountSummary() sos.Summary
}

// Subscriber hands out event streams. *eventbus.TypedBus[events.AlertEvent]
// satisfies it.
type Subscriber interface {
	Subscribe() <-chan events.AlertEvent
	Unsubscribe(sub <-chan events.AlertEvent)
}

// Options wires the router's collaborators. Only Coordinator is required.
type Options struct {
	Coordinator Coordinator
	Events      Subscriber
	Geocoder    connectors.Geocoder
	Logs        logging.LogStore
	LogToken    string
	Heartbeat   time.Duration
	Logger      logger.Logger

	// TriggerRPS and TriggerBurst bound /trigger per client IP. A zero rate
	// disables limiting.
	TriggerRPS   float64
	TriggerBurst int
}

type handler struct {
	c         Coordinator
	events    Subscriber
	geo       connectors.Geocoder
	heartbeat time.Duration
	log       logger.Logger
}

// NewRouter builds the gin engine serving /api/sos and /api/dispatch/logs.
func NewRouter(o Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	Register(r, o)
	return r
}

// Register mounts the routes on r.
func Register(r gin.IRouter, o Options) {
	h := &handler{c: o.Coordinator, events: o.Events, geo: o.Geocoder, heartbeat: o.Heartbeat, log: logger.OrNop(o.Logger)}
	if h.heartbeat <= 0 {
		h.heartbeat = 15 * time.Second
	}

	g := r.Group("/api/sos")
	trigger := []gin.HandlerFunc{h.trigger}
	if o.TriggerRPS > 0 {
		trigger = append([]gin.HandlerFunc{newIPLimiter(o.TriggerRPS, o.TriggerBurst, 10*time.Minute).middleware()}, trigger...)
	}
	g.POST("/trigger", trigger...)
	g.GET("/alerts", h.listAlerts)
	g.GET("/alerts/export", h.exportAlerts)
	g.GET("/alerts/:id", h.getAlert)
	g.PUT("/alerts/:id/read", h.markRead)
	g.DELETE("/alerts/:id", h.dismiss)
	g.POST("/alerts/:id/dispatch", h.dispatch)
	g.PUT("/alerts/:id/status", h.setStatus)
	g.GET("/units", h.listUnits)
	g.GET("/count", h.count)
	if h.events != nil {
		g.GET("/stream", h.stream)
		g.GET("/ws", h.ws)
	}
	if o.Logs != nil {
		r.GET("/api/dispatch/logs", gin.WrapH(apidispatch.NewLogHandler(o.Logs, o.LogToken)))
	}
}

type triggerBody struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
	Message   string   `json:"message"`
}

func (h *handler) trigger(c *gin.Context) {
	var body triggerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc, err := h.locate(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	a, err := h.c.TriggerAlert(sos.TriggerRequest{Location: loc, Address: body.Address, Message: body.Message})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

var errNoLocation = errors.New("latitude and longitude are required")

// locate returns the explicit coordinates or geocodes the address.
func (h *handler) locate(ctx context.Context, b triggerBody) (model.Location, error) {
	if b.Latitude != nil && b.Longitude != nil {
		return model.Location{Lat: *b.Latitude, Lon: *b.Longitude}, nil
	}
	if b.Address == "" || h.geo == nil {
		return model.Location{}, errNoLocation
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	loc, err := h.geo.Geocode(ctx, b.Address)
	if err != nil {
		h.log.Warnf("geocode %q: %v", b.Address, err)
		return model.Location{}, err
	}
	return loc, nil
}

func (h *handler) listAlerts(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.Query("unread_only"))
	alerts := h.c.ListAlerts(unread)
	if alerts == nil {
		alerts = []model.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *handler) exportAlerts(c *gin.Context) {
	format := c.DefaultQuery("format", export.FormatGeoJSON)
	switch format {
	case export.FormatJSON, export.FormatGeoJSON, export.FormatCSV:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format " + format})
		return
	}
	c.Header("Content-Type", export.ContentType(format))
	if format == export.FormatCSV {
		c.Header("Content-Disposition", `attachment; filename="alerts.csv"`)
	}
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, h.c.ListAlerts(false)); err != nil {
		h.log.Errorf("export alerts: %v", err)
	}
}

func (h *handler) getAlert(c *gin.Context) {
	a, err := h.c.GetAlert(c.Param("id"))
	h.reply(c, a, err)
}

func (h *handler) markRead(c *gin.Context) {
	a, err := h.c.MarkAlertRead(c.Param("id"))
	h.reply(c, a, err)
}

func (h *handler) dismiss(c *gin.Context) {
	a, err := h.c.DismissAlert(c.Param("id"))
	h.reply(c, a, err)
}

func (h *handler) dispatch(c *gin.Context) {
	var req dispatch.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.c.Dispatch(c.Param("id"), req)
	h.reply(c, res, err)
}

func (h *handler) setStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Status == "" {
		body.Status = c.Query("status")
	}
	a, err := h.c.SetDispatchStatus(c.Param("id"), body.Status)
	h.reply(c, a, err)
}

func (h *handler) listUnits(c *gin.Context) {
	c.JSON(http.StatusOK, h.c.ListUnits())
}

func (h *handler) count(c *gin.Context) {
	c.JSON(http.StatusOK, h.c.CountSummary())
}

func (h *handler) reply(c *gin.Context, v any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *handler) fail(c *gin.Context, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		h.log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// StatusCode maps domain errors onto HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyDispatched),
		errors.Is(err, model.ErrUnitUnavailable),
		errors.Is(err, model.ErrNoUnitsAvailable):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidStatus),
		errors.Is(err, model.ErrInvalidCoordinate),
		errors.Is(err, errNoLocation):
		return http.StatusBadRequest
	case errors.Is(err, connectors.ErrNoResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
