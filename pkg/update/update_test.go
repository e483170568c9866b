package update

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type transferTestEnv struct {
	guard     *Guard
	transfer  *Transfer
	router    *gin.Engine
	received  bytes.Buffer
	restarts  int32
	applyErr  error
	applyHold chan struct{}
}

func newTransferTestEnv() *transferTestEnv {
	env := &transferTestEnv{guard: &Guard{}}
	env.transfer = &Transfer{
		Events: env.guard,
		Applier: ApplierFunc(func(r io.Reader) error {
			if env.applyHold != nil {
				<-env.applyHold
			}
			if _, err := io.Copy(&env.received, r); err != nil {
				return err
			}
			return env.applyErr
		}),
		Restarter: RestartFunc(func() error {
			atomic.AddInt32(&env.restarts, 1)
			return nil
		}),
		RestartDelay: time.Millisecond,
	}
	env.router = gin.New()
	env.transfer.Register(env.router)
	return env
}

func (env *transferTestEnv) post(body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/update", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestGuard(t *testing.T) {
	g := &Guard{}
	require.False(t, g.IsUpdating())
	g.OnStart()
	require.True(t, g.IsUpdating())
	g.OnProgress(50, 100)
	g.OnProgress(60, -1)
	require.True(t, g.IsUpdating())
	g.OnEnd()
	require.False(t, g.IsUpdating())

	g.OnStart()
	g.OnError(errors.New("flash write"))
	require.False(t, g.IsUpdating(), "failed update must not leave the guard set")
}

func TestTransferSuccess(t *testing.T) {
	env := newTransferTestEnv()
	w := env.post("firmware-image", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "firmware-image", env.received.String())
	require.False(t, env.guard.IsUpdating())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&env.restarts) == 1
	}, time.Second, time.Millisecond)
}

func TestTransferFailure(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		applyErr error
	}{
		{"apply error", "firmware-image", errors.New("bad checksum")},
		{"empty image", "", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTransferTestEnv()
			env.applyErr = tc.applyErr
			w := env.post(tc.body, nil)
			require.Equal(t, http.StatusInternalServerError, w.Code)
			require.False(t, env.guard.IsUpdating())
			time.Sleep(10 * time.Millisecond)
			require.Zero(t, atomic.LoadInt32(&env.restarts))

			// recovers for the next transfer.
			env.applyErr = nil
			require.Equal(t, http.StatusOK, env.post("firmware-image", nil).Code)
		})
	}
}

func TestTransferPassword(t *testing.T) {
	env := newTransferTestEnv()
	env.transfer.Password = "s3cret"
	require.Equal(t, http.StatusUnauthorized, env.post("x", nil).Code)
	require.Equal(t, http.StatusUnauthorized, env.post("x", map[string]string{PasswordHeader: "guess"}).Code)
	require.Zero(t, env.received.Len())
	require.Equal(t, http.StatusOK, env.post("x", map[string]string{PasswordHeader: "s3cret"}).Code)
}

func TestTransferRejectsConcurrent(t *testing.T) {
	env := newTransferTestEnv()
	env.applyHold = make(chan struct{})
	doneCh := make(chan int, 1)
	go func() {
		doneCh <- env.post("first", nil).Code
	}()
	require.Eventually(t, env.guard.IsUpdating, time.Second, time.Millisecond)

	w := env.post("second", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), ErrBusy.Error())

	close(env.applyHold)
	require.Equal(t, http.StatusOK, <-doneCh)
	require.Equal(t, "first", env.received.String())
}

func TestSelfUpdateTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "propd")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0755))
	u := &SelfUpdate{TargetPath: target}
	require.NoError(t, u.Apply(strings.NewReader("new")))
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "new", string(content))
}
