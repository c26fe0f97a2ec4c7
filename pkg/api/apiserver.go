package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tim-beatham/khost/pkg/lib"
	logging "github.com/tim-beatham/khost/pkg/log"
	"github.com/tim-beatham/khost/pkg/query"
	"github.com/tim-beatham/khost/pkg/service"
	"github.com/tim-beatham/khost/pkg/state"
	"github.com/tim-beatham/khost/pkg/status"
)

type ApiServer interface {
	GetStatus(c *gin.Context)
	GetConfig(c *gin.Context)
	GetServices(c *gin.Context)
	Query(c *gin.Context)
	Run(addr string) error
}

// HostSource is the part of the host manager the API reads from
type HostSource interface {
	Config() *state.Config
	Services() []service.Service
	Status(ctx context.Context) (*status.Report, error)
}

type StatusServer struct {
	router  *gin.Engine
	source  HostSource
	querier query.Querier
}

// GetStatus: observes the host and returns the report with its
// conflicts
func (s *StatusServer) GetStatus(c *gin.Context) {
	report, err := s.source.Status(c.Request.Context())

	if err != nil {
		logging.Log.WriteErrorf("%s", err.Error())
		c.JSON(http.StatusInternalServerError, &gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, &StatusResponse{
		Report:    report,
		Conflicts: report.Conflicts(),
	})
}

// GetConfig: returns the persisted desired state
func (s *StatusServer) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Config())
}

func (s *StatusServer) GetServices(c *gin.Context) {
	c.JSON(http.StatusOK, &ServicesResponse{
		Services: lib.Map(s.source.Services(), query.ServiceToQueryService),
	})
}

// Query: evaluates the JMESPath expression in q
func (s *StatusServer) Query(c *gin.Context) {
	var request QueryRequest

	if err := c.ShouldBindQuery(&request); err != nil {
		c.JSON(http.StatusBadRequest, &gin.H{
			"error": err.Error(),
		})
		return
	}

	result, err := s.querier.Query(request.Expression)

	var queryErr *query.QueryError

	if errors.As(err, &queryErr) {
		c.JSON(http.StatusBadRequest, &gin.H{
			"error": queryErr.Error(),
		})
		return
	}

	if err != nil {
		logging.Log.WriteErrorf("%s", err.Error())
		c.JSON(http.StatusInternalServerError, nil)
		return
	}

	c.JSON(http.StatusOK, json.RawMessage(result))
}

func (s *StatusServer) Run(addr string) error {
	logging.Log.WriteInfof("Running status API on %s", addr)
	return s.router.Run(addr)
}

func NewStatusServer(source HostSource) ApiServer {
	router := gin.New()

	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Output: logging.Log.Writer(),
	}), gin.Recovery())

	statusServer := &StatusServer{
		router:  router,
		source:  source,
		querier: query.NewJmesQuerier(source),
	}

	router.GET("/status", statusServer.GetStatus)
	router.GET("/config", statusServer.GetConfig)
	router.GET("/services", statusServer.GetServices)
	router.GET("/query", statusServer.Query)
	return statusServer
}
