package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tim-beatham/khost/pkg/host"
	"github.com/tim-beatham/khost/pkg/service"
	"github.com/tim-beatham/khost/pkg/state"
	"github.com/tim-beatham/khost/pkg/status"
	"github.com/tim-beatham/khost/pkg/systemd"
)

type hostSourceStub struct {
	config    *state.Config
	statusErr error
}

func (h *hostSourceStub) Config() *state.Config {
	return h.config.Clone()
}

func (h *hostSourceStub) Services() []service.Service {
	return service.FromConfig(h.config)
}

func (h *hostSourceStub) Status(ctx context.Context) (*status.Report, error) {
	if h.statusErr != nil {
		return nil, h.statusErr
	}

	units := systemd.NewUnitManagerStub()
	units.Install("kaspa-mainnet", true, false)

	return status.Observe(ctx, status.ObserveParams{
		Units:    units,
		Services: h.Services(),
		Host:     &host.Info{Hostname: "kaspa-1"},
	}), nil
}

func getTestServer(source *hostSourceStub) *StatusServer {
	gin.SetMode(gin.TestMode)
	return NewStatusServer(source).(*StatusServer)
}

func get(t *testing.T, server *StatusServer, target string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, target, nil)
	server.router.ServeHTTP(recorder, request)
	return recorder
}

func TestGetStatus(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default()})

	recorder := get(t, server, "/status")

	if recorder.Code != http.StatusOK {
		t.Fatalf(`expected 200 got %d`, recorder.Code)
	}

	var response struct {
		Host      host.Info              `json:"host"`
		Services  []status.ServiceStatus `json:"services"`
		Conflicts []string               `json:"conflicts"`
	}

	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}

	if response.Host.Hostname != "kaspa-1" || len(response.Services) != 5 {
		t.Fatalf(`unexpected response %s`, recorder.Body.String())
	}

	if len(response.Conflicts) != 1 {
		t.Fatalf(`stopped mainnet should be a conflict got %v`, response.Conflicts)
	}
}

func TestGetStatusFailure(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default(), statusErr: errors.New("systemctl missing")})

	if recorder := get(t, server, "/status"); recorder.Code != http.StatusInternalServerError {
		t.Fatalf(`expected 500 got %d`, recorder.Code)
	}
}

func TestGetConfig(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default()})

	recorder := get(t, server, "/config")

	config, _, err := state.Parse(recorder.Body.Bytes())

	if err != nil {
		t.Fatal(err)
	}

	if !config.Node(state.Mainnet).Enabled {
		t.Fatal(`mainnet should be enabled`)
	}
}

func TestGetServices(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default()})

	var response ServicesResponse

	if err := json.Unmarshal(get(t, server, "/services").Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}

	if len(response.Services) != 5 || response.Services[0].Name != "kaspa-mainnet" {
		t.Fatalf(`unexpected services %+v`, response.Services)
	}

	if len(response.Services[0].Routes) != 2 {
		t.Fatalf(`node should expose two routes got %v`, response.Services[0].Routes)
	}
}

func TestQuery(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default()})

	recorder := get(t, server, "/query?q="+url.QueryEscape("services[?enabled].name"))

	if recorder.Code != http.StatusOK {
		t.Fatalf(`expected 200 got %d: %s`, recorder.Code, recorder.Body.String())
	}

	var names []string

	if err := json.Unmarshal(recorder.Body.Bytes(), &names); err != nil {
		t.Fatal(err)
	}

	if len(names) != 1 || names[0] != "kaspa-mainnet" {
		t.Fatalf(`unexpected names %v`, names)
	}
}

func TestQueryMissingExpression(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default()})

	if recorder := get(t, server, "/query"); recorder.Code != http.StatusBadRequest {
		t.Fatalf(`expected 400 got %d`, recorder.Code)
	}
}

func TestQueryInvalidExpression(t *testing.T) {
	server := getTestServer(&hostSourceStub{config: state.Default()})

	if recorder := get(t, server, "/query?q="+url.QueryEscape("services[")); recorder.Code != http.StatusBadRequest {
		t.Fatalf(`expected 400 got %d`, recorder.Code)
	}
}
