package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/savagetongue/mess-connect0209/apperrors"
)

func TestFormatMinorUnits(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{300000, "INR", "₹3,000.00"},
		{5, "INR", "₹0.05"},
		{123456789, "usd", "$1,234,567.89"},
		{-2550, "INR", "-₹25.50"},
		{100, "EUR", "EUR 1.00"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMinorUnits(tt.amount, tt.currency))
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")

	token, err := GenerateToken("user-1", "student")
	require.NoError(t, err)

	claims, err := ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "student", claims.Role)

	BlacklistToken(token, claims.ExpiresAt.Time)
	_, err = ValidateToken(token)
	assert.Error(t, err)

	assert.Equal(t, 0, PruneBlacklist(time.Now().Add(48*time.Hour)))
	_, err = ParseToken("not-a-token")
	assert.Error(t, err)
}

func TestRespondAppErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{apperrors.NotFound("student not found"), http.StatusNotFound, "not_found"},
		{apperrors.Conflict("already paid this period"), http.StatusConflict, "conflict"},
		{apperrors.Validation("amount must be positive"), http.StatusBadRequest, "validation_error"},
		{apperrors.ErrSignatureInvalid, http.StatusBadRequest, "signature_invalid"},
		{apperrors.Gateway("gateway down"), http.StatusBadGateway, "gateway_error"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

			RespondAppError(c, tt.err)

			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), `"kind":"`+tt.kind+`"`)
			assert.Contains(t, w.Body.String(), `"status":false`)
		})
	}
}
