package update

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/minio/selfupdate"

	"github.com/robotalks/prop.go/pkg/metrics"
	"github.com/robotalks/prop.go/pkg/state"
)

// PasswordHeader carries the shared update password.
const PasswordHeader = "X-Update-Password"

// DefaultRestartDelay leaves time for the response to reach the client.
const DefaultRestartDelay = time.Second

// Errors
var (
	ErrBusy         = errors.New("update already in progress")
	ErrUnauthorized = errors.New("update password mismatch")
	ErrEmpty        = errors.New("empty firmware image")
)

// Applier installs a firmware image read from r.
type Applier interface {
	Apply(r io.Reader) error
}

// ApplierFunc is the func form of Applier.
type ApplierFunc func(io.Reader) error

// Apply implements Applier.
func (f ApplierFunc) Apply(r io.Reader) error {
	return f(r)
}

// Restarter brings up the newly installed firmware.
type Restarter interface {
	Restart() error
}

// RestartFunc is the func form of Restarter.
type RestartFunc func() error

// Restart implements Restarter.
func (f RestartFunc) Restart() error {
	return f()
}

// SelfUpdate replaces an executable in place, the running one when
// TargetPath is empty.
type SelfUpdate struct {
	TargetPath string
}

// Apply implements Applier.
func (u *SelfUpdate) Apply(r io.Reader) error {
	err := selfupdate.Apply(r, selfupdate.Options{TargetPath: u.TargetPath})
	if err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			return fmt.Errorf("apply: %w, rollback: %v", err, rerr)
		}
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// Transfer receives firmware images over HTTP. Only one transfer runs
// at a time; failures are reported to Events and never fatal.
type Transfer struct {
	Events       Events
	Applier      Applier
	Restarter    Restarter
	Password     string
	RestartDelay time.Duration
	Metrics      *metrics.Metrics

	busy state.Flag
}

// Register adds the transfer endpoint to routes.
func (t *Transfer) Register(routes gin.IRoutes) {
	routes.POST("/update", t.Handle)
}

// Handle is the gin handler of POST /update.
func (t *Transfer) Handle(c *gin.Context) {
	if t.Password != "" {
		given := c.GetHeader(PasswordHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(t.Password)) != 1 {
			glog.Warningf("update from %s rejected: %v", c.ClientIP(), ErrUnauthorized)
			c.JSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
	}
	if !t.busy.Raise() {
		c.JSON(http.StatusConflict, gin.H{"error": ErrBusy.Error()})
		return
	}
	defer t.busy.Set(false)

	glog.Infof("update from %s, %d bytes", c.ClientIP(), c.Request.ContentLength)
	if err := t.receive(c.Request.Body, c.Request.ContentLength); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
	t.scheduleRestart()
}

func (t *Transfer) receive(body io.Reader, total int64) error {
	t.Events.OnStart()
	r := &progressReader{r: body, total: total, events: t.Events, metrics: t.Metrics}
	err := t.Applier.Apply(r)
	if err == nil && r.done == 0 {
		err = ErrEmpty
	}
	if err == nil && total > 0 && r.done != total {
		err = fmt.Errorf("short transfer: %d of %d bytes", r.done, total)
	}
	if err != nil {
		t.Events.OnError(err)
		return err
	}
	t.Events.OnEnd()
	return nil
}

func (t *Transfer) scheduleRestart() {
	if t.Restarter == nil {
		return
	}
	delay := t.RestartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	time.AfterFunc(delay, func() {
		glog.Info("restarting into new firmware")
		if err := t.Restarter.Restart(); err != nil {
			glog.Errorf("restart: %v", err)
		}
	})
}

type progressReader struct {
	r       io.Reader
	total   int64
	done    int64
	events  Events
	metrics *metrics.Metrics
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.metrics.UpdateReceived(n)
		p.events.OnProgress(p.done, p.total)
	}
	return n, err
}
