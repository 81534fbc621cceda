package validator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
)

func ptr(f float64) *float64 { return &f }

func TestValidateCoordinates(t *testing.T) {
	v := NewValidator()

	valid := [][2]float64{{90, 0}, {-90, 0}, {0, 180}, {0, -180}, {40.9884, 29.0255}}
	for _, c := range valid {
		assert.NoError(t, v.ValidateCoordinates(c[0], c[1]), "lat=%v lon=%v", c[0], c[1])
	}

	invalid := []struct {
		lat, lon float64
		field    string
	}{
		{90.1, 0, "latitude"},
		{-90.1, 0, "latitude"},
		{0, 180.1, "longitude"},
		{0, -180.1, "longitude"},
		{math.NaN(), 0, "latitude"},
		{0, math.Inf(1), "longitude"},
	}
	for _, c := range invalid {
		err := v.ValidateCoordinates(c.lat, c.lon)
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, c.field, apperrors.As(err).Field)
	}
}

func TestValidateAccuracy(t *testing.T) {
	assert.NoError(t, ValidateAccuracy(nil))
	assert.NoError(t, ValidateAccuracy(ptr(0)))
	assert.NoError(t, ValidateAccuracy(ptr(12.5)))

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		err := ValidateAccuracy(ptr(bad))
		assert.True(t, apperrors.IsValidation(err), "accuracy %v", bad)
	}
}

func TestValidateRoom(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateRoom("istanbul"))
	assert.Error(t, v.ValidateRoom(""))
	assert.Error(t, v.ValidateRoom("   "))
	assert.Error(t, v.ValidateRoom(string(make([]byte, 65))))
}

func TestStruct_ReportsJSONFieldName(t *testing.T) {
	type request struct {
		Latitude *float64 `json:"latitude" validate:"required"`
	}

	err := NewValidator().Struct(request{})
	require.Error(t, err)
	appErr := apperrors.As(err)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Equal(t, "latitude", appErr.Field)
}
