package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("x", "bad"), http.StatusBadRequest},
		{"conflict", Conflict("dup", "taken"), http.StatusBadRequest},
		{"authentication", Authentication("bad_password", "no"), http.StatusUnauthorized},
		{"authorization", Authorization("locked", "no"), http.StatusForbidden},
		{"delivery", Delivery(errors.New("smtp down")), http.StatusBadGateway},
		{"rate limited", RateLimited("slow down"), http.StatusTooManyRequests},
		{"infrastructure", Infrastructure(errors.New("db")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", Authorization("locked", "no")), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := Infrastructure(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Service temporarily unavailable. Please try again.", err.Message)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAs_WrapsUnclassified(t *testing.T) {
	e := As(errors.New("boom"))
	assert.Equal(t, KindInfrastructure, e.Kind)
	assert.Nil(t, As(nil))
}

func TestIsKind(t *testing.T) {
	assert.True(t, IsKind(Conflict("dup", "x"), KindConflict))
	assert.False(t, IsKind(Conflict("dup", "x"), KindValidation))
	assert.False(t, IsKind(errors.New("x"), KindInfrastructure))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "authorization", KindAuthorization.String())
	assert.Equal(t, "infrastructure", KindInfrastructure.String())
}
