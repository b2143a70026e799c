package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func TestWriteWorkflowErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"retryable", utils.Retryable(errors.New("processor unreachable")), http.StatusServiceUnavailable, `"retryable":true`},
		{"unauthorized", utils.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"sentinel not found", utils.ErrorRecordNotFound, http.StatusNotFound, ""},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound, ""},
		{"refund bound", models.ErrRefundExceedsBalance, http.StatusUnprocessableEntity, "refund_exceeds_balance"},
		{"other", errors.New("bad input"), http.StatusBadRequest, `"retryable":false`},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeWorkflowError(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.name, tc.status, w.Code)
		}
		if tc.body != "" && !strings.Contains(w.Body.String(), tc.body) {
			t.Fatalf("%s: expected body to contain %q, got %s", tc.name, tc.body, w.Body.String())
		}
	}
}
