package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klinikgo/clinic-server/pkg/apperrors"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"validation", apperrors.Validation("bad input"), apperrors.KindValidation},
		{"conflict", apperrors.Conflict("slot taken"), apperrors.KindConflict},
		{"authorization", apperrors.Authorization("not yours"), apperrors.KindAuthorization},
		{"not found", apperrors.NotFound("gone"), apperrors.KindNotFound},
		{"domain rule", apperrors.DomainRule("record required"), apperrors.KindDomainRule},
		{"internal", apperrors.Internal("query failed", errors.New("boom")), apperrors.KindInternal},
		{"plain error", errors.New("boom"), apperrors.KindInternal},
		{"nil", nil, apperrors.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.KindOf(tt.err))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("booking: %w", apperrors.Conflict("slot taken"))
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestErrorMessage(t *testing.T) {
	err := apperrors.NotFound("appointment not found")
	assert.Equal(t, "NOT_FOUND: appointment not found", err.Error())

	cause := errors.New("connection refused")
	wrapped := apperrors.Internal("loading doctor", cause)
	assert.Equal(t, "INTERNAL: loading doctor: connection refused", wrapped.Error())
	require.ErrorIs(t, wrapped, cause)
}

func TestPredicatesRejectOtherKinds(t *testing.T) {
	err := apperrors.Validation("bad input")
	assert.True(t, apperrors.IsValidation(err))
	assert.False(t, apperrors.IsConflict(err))
	assert.False(t, apperrors.IsAuthorization(err))
	assert.False(t, apperrors.IsNotFound(err))
	assert.False(t, apperrors.IsDomainRule(err))
}
