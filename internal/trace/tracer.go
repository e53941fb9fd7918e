// Package trace instruments capability calls. Decorators wrap a capability
// backend and report entry and return of every operation to a Tracer without
// changing arguments, results or side effects.
package trace

import (
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

// Tracer observes capability calls.
type Tracer interface {
	Begin(capability, op string) Call
}

// Call is one in-flight traced operation.
type Call interface {
	// Return records the returned value; pointers are formatted as addresses.
	Return(v any)
	ReturnVoid()
}

// Noop discards all trace events.
var Noop Tracer = noopTracer{}

type noopTracer struct{}
type noopCall struct{}

func (noopTracer) Begin(string, string) Call { return noopCall{} }
func (noopCall) Return(any) {}
func (noopCall) ReturnVoid() {}

// Multi fans trace events out to every non-nil tracer.
func Multi(tracers ...Tracer) Tracer {
	var live []Tracer
	for _, t := range tracers {
		if t != nil {
			live = append(live, t)
		}
	}
	switch len(live) {
	case 0:
		return Noop
	case 1:
		return live[0]
	}
	return multiTracer(live)
}

type multiTracer []Tracer
type multiCall []Call

func (m multiTracer) Begin(capability, op string) Call {
	calls := make(multiCall, len(m))
	for i, t := range m {
		calls[i] = t.Begin(capability, op)
	}
	return calls
}

func (m multiCall) Return(v any) {
	for _, c := range m {
		c.Return(v)
	}
}

func (m multiCall) ReturnVoid() {
	for _, c := range m {
		c.ReturnVoid()
	}
}

// LogTracer writes entry and return lines at Trace level.
type LogTracer struct {
	logger *logrus.Logger
}

func NewLogTracer(logger *logrus.Logger) *LogTracer {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogTracer{logger: logger}
}

func (t *LogTracer) Begin(capability, op string) Call {
	name := capability + "." + op
	if t.logger.IsLevelEnabled(logrus.TraceLevel) {
		t.logger.WithField("fn", name).Trace("[TRACE ENTRY]")
	}
	return &logCall{logger: t.logger, name: name}
}

type logCall struct {
	logger *logrus.Logger
	name   string
}

func (c *logCall) Return(v any) {
	if c.logger.IsLevelEnabled(logrus.TraceLevel) {
		c.logger.WithFields(logrus.Fields{"fn": c.name, "result": formatResult(v)}).Trace("[TRACE RETURN]")
	}
}

func (c *logCall) ReturnVoid() {
	if c.logger.IsLevelEnabled(logrus.TraceLevel) {
		c.logger.WithField("fn", c.name).Trace("[TRACE RETURN]")
	}
}

// resultLabel reduces a returned value to a low-cardinality label.
func resultLabel(v any) string {
	switch r := v.(type) {
	case hal.Status:
		return r.String()
	case bool:
		if r {
			return "true"
		}
		return "false"
	case nil:
		return "nil"
	default:
		return "value"
	}
}

func formatResult(v any) string {
	switch r := v.(type) {
	case fmt.Stringer:
		return r.String()
	case []byte:
		return fmt.Sprintf("%d bytes", len(r))
	case nil:
		return "<nil>"
	}
	if reflect.ValueOf(v).Kind() == reflect.Pointer {
		return fmt.Sprintf("%p", v)
	}
	return fmt.Sprintf("%v", v)
}
