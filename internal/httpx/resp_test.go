package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, w
}

func TestOK(t *testing.T) {
	c, w := newTestContext()
	OK(c, gin.H{"pong": true})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Code != CodeSuccess {
		t.Errorf("code = %d, want %d", resp.Code, CodeSuccess)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", resp.Warnings)
	}
}

func TestOKWarn(t *testing.T) {
	c, w := newTestContext()
	OKWarn(c, nil, []string{"nginx reload failed: exit status 1"})

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one entry", resp.Warnings)
	}
}

func TestFailErr_SanitizesInternalError(t *testing.T) {
	c, w := newTestContext()
	FailErr(c, ErrDatabaseError("store operation failed", errSentinel{}))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	body := w.Body.String()
	if strings.Contains(body, "secret dsn detail") {
		t.Errorf("internal error detail leaked into response: %s", body)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "secret dsn detail" }
