package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name     string
	critical bool
	err      error
}

func (f fakeChecker) Name() string     { return f.name }
func (f fakeChecker) Critical() bool   { return f.critical }
func (f fakeChecker) Check(ctx context.Context) error { return f.err }

func TestManagerReadyWithNoFailedCriticalChecks(t *testing.T) {
	m := NewManager(nil)
	m.RegisterChecker(fakeChecker{name: "store", critical: true})
	m.RegisterChecker(fakeChecker{name: "optional", critical: false, err: errors.New("down")})
	m.Start(context.Background())
	m.Stop()
	assert.True(t, m.Ready())
}

func TestManagerNotReadyOnCriticalFailure(t *testing.T) {
	m := NewManager(nil)
	m.RegisterChecker(fakeChecker{name: "store", critical: true, err: errors.New("unreachable")})
	m.Start(context.Background())
	m.Stop()
	assert.False(t, m.Ready())
}

func TestHTTPHandlerReadyz(t *testing.T) {
	m := NewManager(nil)
	m.RegisterChecker(fakeChecker{name: "store", critical: true})
	m.Start(context.Background())
	m.Stop()

	mux := http.NewServeMux()
	NewHTTPHandler(m).RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
