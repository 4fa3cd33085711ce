package api

import (
	"net/http"

	"github.com/emicklei/go-restful/v3"

	"github.com/acwooding/dmp-test-ci/internal/golden"
	"github.com/acwooding/dmp-test-ci/internal/tracker"
)

// RegisterRoutes adds the run, baseline and version routes to the web service.
func RegisterRoutes(ws *restful.WebService, handler *Handler) {
	ws.Route(ws.GET("/version").To(handler.GetVersion).
		Doc("get server version information").
		Returns(http.StatusOK, "OK", map[string]string{}))

	// --- Run Routes ---

	ws.Route(ws.GET("/runs").To(handler.ListRuns).
		Doc("list suite runs, newest first").
		Returns(http.StatusOK, "OK", []tracker.Run{}))

	ws.Route(ws.POST("/runs").To(handler.CreateRun).
		Doc("start a suite run in the background").
		Reads(CreateRunRequest{}).
		Returns(http.StatusAccepted, "Accepted", tracker.Run{}).
		Returns(http.StatusBadRequest, "Bad Request", ErrorResponse{}).
		Returns(http.StatusServiceUnavailable, "Service Unavailable", ErrorResponse{}))

	ws.Route(ws.GET("/runs/{id}").To(handler.GetRun).
		Doc("get a suite run by ID").
		Param(ws.PathParameter("id", "identifier of the run").DataType("string")).
		Returns(http.StatusOK, "OK", tracker.Run{}).
		Returns(http.StatusNotFound, "Not Found", ErrorResponse{}))

	ws.Route(ws.GET("/runs/{id}/events").To(handler.StreamEvents).
		Doc("stream run progress events over a WebSocket").
		Param(ws.PathParameter("id", "identifier of the run").DataType("string")).
		Returns(http.StatusSwitchingProtocols, "Switching Protocols", nil).
		Returns(http.StatusNotFound, "Not Found", ErrorResponse{}))

	// --- Baseline Routes ---

	ws.Route(ws.GET("/baselines").To(handler.ListBaselines).
		Doc("list golden screenshots").
		Returns(http.StatusOK, "OK", []golden.Baseline{}))

	ws.Route(ws.GET("/baselines/{name}").To(handler.GetBaseline).
		Doc("download a golden screenshot").
		Param(ws.PathParameter("name", "baseline file name").DataType("string")).
		Produces("image/png").
		Returns(http.StatusOK, "OK", nil).
		Returns(http.StatusBadRequest, "Bad Request", ErrorResponse{}).
		Returns(http.StatusNotFound, "Not Found", ErrorResponse{}))
}
