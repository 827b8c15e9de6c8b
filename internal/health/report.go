package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckOK is the value recorded for a passing component.
const CheckOK = "ok"

// Report is a health verdict. Checks is omitted from JSON when empty.
type Report struct {
	Status Status            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether the verdict is healthy.
func (r Report) Healthy() bool { return r.Status == StatusHealthy }

// StatusCode maps the verdict to 200 or 500.
func (r Report) StatusCode() int {
	if r.Healthy() {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// Reporter produces a verdict for the current request.
type Reporter interface {
	Report(ctx context.Context) Report
}

// ReporterFunc adapts a function into a Reporter.
type ReporterFunc func(context.Context) Report

func (f ReporterFunc) Report(ctx context.Context) Report { return f(ctx) }

// Static always reports healthy with no component checks.
func Static() Reporter {
	return ReporterFunc(func(context.Context) Report {
		return Report{Status: StatusHealthy}
	})
}

// Check is one named component verified by a Checker.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// AppCheck always passes; if the process can answer, the app is up.
func AppCheck() Check {
	return Check{Name: "app", Fn: func(context.Context) error { return nil }}
}

// PingCheck verifies a dependency through p, e.g. a datastore running SELECT 1.
func PingCheck(name string, p interface{ Ping(context.Context) error }) Check {
	return Check{Name: name, Fn: p.Ping}
}

// Checker runs its checks concurrently, each under its own timeout.
type Checker struct {
	checks  []Check
	timeout time.Duration

	// Observe, when set, is told how long each check took and its error.
	Observe func(name string, d time.Duration, err error)
}

// NewChecker returns a Checker. timeout <= 0 means checks rely on the
// request context alone.
func NewChecker(timeout time.Duration, checks ...Check) *Checker {
	return &Checker{checks: checks, timeout: timeout}
}

// Report runs every check. The verdict is healthy only if all pass; a failed
// check's value is its error text verbatim.
func (c *Checker) Report(ctx context.Context) Report {
	rep := Report{Status: StatusHealthy, Checks: make(map[string]string, len(c.checks))}

	results := make([]error, len(c.checks))
	var wg sync.WaitGroup
	for i, chk := range c.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, chk)
		}()
	}
	wg.Wait()

	for i, chk := range c.checks {
		if err := results[i]; err != nil {
			rep.Status = StatusUnhealthy
			rep.Checks[chk.Name] = err.Error()
			continue
		}
		rep.Checks[chk.Name] = CheckOK
	}
	return rep
}

func (c *Checker) run(ctx context.Context, chk Check) (err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if c.Observe != nil {
			c.Observe(chk.Name, time.Since(start), err)
		}
	}()
	if chk.Fn == nil {
		return nil
	}
	return chk.Fn(ctx)
}
