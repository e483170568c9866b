// Package reset funnels the physical hold-to-reset button and the
// remote reset command into one cross-domain request flag.
package reset

import (
	"github.com/golang/glog"

	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/state"
)

// Request sources.
const (
	SourceButton = metrics.SourceButton
	SourceRemote = metrics.SourceRemote
)

// Requester is the flag-setting primitive shared by all sources.
type Requester interface {
	Request(source string) bool
}

// Coordinator owns the reset request flag. Any source may raise it;
// only the main cycle takes it. Simultaneous requests collapse into
// one: the first observed wins and nothing is queued.
type Coordinator struct {
	Metrics *metrics.Metrics

	requested state.Flag
}

// Request raises the flag and reports whether this call raised it.
func (c *Coordinator) Request(source string) bool {
	if !c.requested.Raise() {
		glog.V(1).Infof("reset from %s ignored, already pending", source)
		return false
	}
	glog.Infof("reset requested by %s", source)
	c.Metrics.ResetRequested(source)
	return true
}

// Pending reports whether a request is waiting.
func (c *Coordinator) Pending() bool {
	return c.requested.IsSet()
}

// Take clears the flag and reports whether a request was pending.
func (c *Coordinator) Take() bool {
	return c.requested.Take()
}
