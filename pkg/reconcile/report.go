package reconcile

import (
	"errors"
	"fmt"
)

// Step names one operation of a reconciliation pass
type Step string

const (
	StepObserve      Step = "observe"
	StepStop         Step = "stop"
	StepDisable      Step = "disable"
	StepRemove       Step = "remove"
	StepRender       Step = "render"
	StepWrite        Step = "write"
	StepRoutes       Step = "routes"
	StepDaemonReload Step = "daemon-reload"
	StepEnable       Step = "enable"
	StepStart        Step = "start"
	StepRestart      Step = "restart"
	StepProxyReload  Step = "proxy-reload"
)

// StepError is the failure of one step for one service
type StepError struct {
	Service string
	Step    Step
	Err     error
}

func (s *StepError) Error() string {
	return fmt.Sprintf("%s: %s failed: %s", s.Service, s.Step, s.Err.Error())
}

func (s *StepError) Unwrap() error {
	return s.Err
}

// Action is a mutating operation that was performed
type Action struct {
	Service string `json:"service"`
	Step    Step   `json:"step"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s %s", a.Step, a.Service)
}

// Report is the outcome of a pass: every action performed in order and
// every step that failed
type Report struct {
	Actions  []Action
	Failures []*StepError
}

func (r *Report) performed(service string, step Step) {
	r.Actions = append(r.Actions, Action{Service: service, Step: step})
}

func (r *Report) failed(service string, step Step, err error) {
	r.Failures = append(r.Failures, &StepError{Service: service, Step: step, Err: err})
}

// Err joins the failures, nil when every step succeeded
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}

	errs := make([]error, len(r.Failures))

	for i, failure := range r.Failures {
		errs[i] = failure
	}

	return errors.Join(errs...)
}

// Failed reports whether the given step failed for the service
func (r *Report) Failed(service string, step Step) bool {
	for _, failure := range r.Failures {
		if failure.Service == service && failure.Step == step {
			return true
		}
	}

	return false
}
