package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"creator_ledger/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"validation", apperr.Validation("empty content"), http.StatusBadRequest, ErrInvalidParam},
		{"permission", apperr.Permission("not a participant"), http.StatusForbidden, ErrNoPermission},
		{"balance", apperr.InsufficientBalance(1, 2), http.StatusPaymentRequired, ErrInsufficientBalance},
		{"not found", apperr.NotFound("post"), http.StatusNotFound, ErrNotFound},
		{"transient", apperr.Transient("debit", errors.New("conn reset")), http.StatusServiceUnavailable, ErrRetryable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrServerInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _ := Classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestFromErrorHidesTransientDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	FromError(c, apperr.Transient("debit", errors.New("pq: password authentication failed")))

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, retryableMessage, body.Message)
	assert.NotContains(t, body.Message, "password")
}
