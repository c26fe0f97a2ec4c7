package query

import (
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"
	"github.com/tim-beatham/khost/pkg/lib"
	"github.com/tim-beatham/khost/pkg/nginx"
	"github.com/tim-beatham/khost/pkg/service"
	"github.com/tim-beatham/khost/pkg/state"
)

// Querier queries the desired state and returns JSON
type Querier interface {
	Query(expression string) ([]byte, error)
}

// ConfigSource returns the current desired state
type ConfigSource interface {
	Config() *state.Config
}

// JmesQuerier: queries the desired state in JMESPath syntax
type JmesQuerier struct {
	source ConfigSource
}

// QueryError: the expression could not be evaluated
type QueryError struct {
	msg string
}

func (m *QueryError) Error() string {
	return m.msg
}

// QueryService: a service as exposed to queries
type QueryService struct {
	Name    string   `json:"name"`
	Caption string   `json:"caption"`
	Kind    string   `json:"kind"`
	Enabled bool     `json:"enabled"`
	Managed bool     `json:"managed"`
	Origin  string   `json:"origin,omitempty"`
	Routes  []string `json:"routes"`
}

// ServiceToQueryService: convert the service into a query abstraction
func ServiceToQueryService(svc service.Service) QueryService {
	queryService := QueryService{
		Name:    svc.Name,
		Caption: svc.Caption,
		Kind:    svc.Kind.String(),
		Enabled: svc.Enabled,
		Managed: svc.Managed,
		Routes:  lib.Map(service.Routes(svc), func(r nginx.Route) string { return r.Path }),
	}

	if svc.Origin != nil {
		queryService.Origin = svc.Origin.String()
	}

	return queryService
}

// toGeneric converts the record into maps and slices so that field
// names follow the JSON tags
func toGeneric(config *state.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(config)

	if err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	err = json.Unmarshal(data, &generic)
	return generic, err
}

// Query: evaluates the expression against {config, services}
func (j *JmesQuerier) Query(expression string) ([]byte, error) {
	config := j.source.Config()

	generic, err := toGeneric(config)

	if err != nil {
		return nil, err
	}

	services, err := toGenericServices(lib.Map(service.FromConfig(config), ServiceToQueryService))

	if err != nil {
		return nil, err
	}

	result, err := jmespath.Search(expression, map[string]interface{}{
		"config":   generic,
		"services": services,
	})

	if err != nil {
		return nil, &QueryError{msg: fmt.Sprintf("invalid query %q: %s", expression, err.Error())}
	}

	return json.Marshal(result)
}

func toGenericServices(services []QueryService) ([]interface{}, error) {
	data, err := json.Marshal(services)

	if err != nil {
		return nil, err
	}

	var generic []interface{}
	err = json.Unmarshal(data, &generic)
	return generic, err
}

func NewJmesQuerier(source ConfigSource) Querier {
	return &JmesQuerier{source: source}
}
