// Package stub holds the compiled-in backends of constrained targets. Queries
// answer with fixed defaults until a detection source feeds real state in,
// and commands are accepted without effect.
//
// The same backends stand in for capabilities a desktop host cannot provide;
// constructed WithCommandStatus(hal.StatusUnsupported) they refuse commands
// instead of accepting them.
package stub

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/nearbyhal/pkg/hal"
)

type options struct {
	logger    *logrus.Logger
	cmdStatus hal.Status
}

// Option configures a stub backend.
type Option func(*options)

func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCommandStatus sets the status returned by commands that have no backing hardware.
func WithCommandStatus(s hal.Status) Option {
	return func(o *options) { o.cmdStatus = s }
}

func buildOptions(opts []Option) options {
	o := options{cmdStatus: hal.StatusOK}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	return o
}
