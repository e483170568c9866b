// Package update excludes application work while new firmware is
// being received and applies the firmware to the running executable.
package update

import (
	"github.com/golang/glog"

	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/state"
)

// Events receives the lifecycle of one firmware transfer.
type Events interface {
	OnStart()
	OnProgress(done, total int64)
	OnEnd()
	OnError(err error)
}

// Guard tracks whether a transfer is in progress. Only the transfer
// callbacks write it; the main cycle reads it through IsUpdating.
type Guard struct {
	Metrics *metrics.Metrics

	inProgress state.Flag
	lastDecile int64
}

// OnStart implements Events.
func (g *Guard) OnStart() {
	g.inProgress.Set(true)
	g.lastDecile = -1
	glog.Info("firmware update started")
}

// OnProgress implements Events. total is negative when unknown.
func (g *Guard) OnProgress(done, total int64) {
	if total <= 0 {
		glog.V(2).Infof("firmware update: %d bytes", done)
		return
	}
	if decile := done * 10 / total; decile != g.lastDecile {
		g.lastDecile = decile
		glog.Infof("firmware update: %d%%", decile*10)
	}
}

// OnEnd implements Events.
func (g *Guard) OnEnd() {
	g.inProgress.Set(false)
	g.Metrics.UpdateFinished(metrics.ResultOK)
	glog.Info("firmware update finished")
}

// OnError implements Events.
func (g *Guard) OnError(err error) {
	g.inProgress.Set(false)
	g.Metrics.UpdateFinished(metrics.ResultError)
	glog.Errorf("firmware update failed: %v", err)
}

// IsUpdating reports whether a transfer is in progress.
func (g *Guard) IsUpdating() bool {
	return g.inProgress.IsSet()
}
