package api

import (
	"github.com/tim-beatham/khost/pkg/query"
	"github.com/tim-beatham/khost/pkg/status"
)

type StatusResponse struct {
	*status.Report
	Conflicts []string `json:"conflicts"`
}

type ServicesResponse struct {
	Services []query.QueryService `json:"services"`
}

type QueryRequest struct {
	Expression string `form:"q" binding:"required"`
}
