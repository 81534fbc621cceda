package validator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"

	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
)

type Validator interface {
	ValidateCoordinates(lat, lon float64) error
	ValidateAccuracy(accuracy *float64) error
	ValidateRoom(room string) error
	Struct(s any) error
}

type validator struct {
	structs *playground.Validate
}

func NewValidator() Validator {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &validator{structs: v}
}

// ValidateCoordinates accepts the closed ranges [-90, 90] and [-180, 180]. NaN is rejected.
func (v *validator) ValidateCoordinates(lat, lon float64) error {
	return ValidateCoordinates(lat, lon)
}

func (v *validator) ValidateAccuracy(accuracy *float64) error {
	return ValidateAccuracy(accuracy)
}

func (v *validator) ValidateRoom(room string) error {
	if l := len(strings.TrimSpace(room)); l == 0 || len(room) > 64 {
		return apperrors.Validation("room", apperrors.ErrInvalidRoom)
	}
	return nil
}

// Struct runs tag-based validation and reports the first failing field as a ValidationError.
func (v *validator) Struct(s any) error {
	err := v.structs.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs playground.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return apperrors.Validation(fe.Field(), fmt.Errorf("failed on '%s' rule", fe.Tag()))
	}
	return apperrors.Validation("", err)
}

func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return apperrors.Validation("latitude", apperrors.ErrInvalidLatitude)
	}

	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return apperrors.Validation("longitude", apperrors.ErrInvalidLongitude)
	}

	return nil
}

func ValidateAccuracy(accuracy *float64) error {
	if accuracy == nil {
		return nil
	}
	a := *accuracy
	if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
		return apperrors.Validation("accuracy", apperrors.ErrInvalidAccuracy)
	}
	return nil
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
	}
	if name == "" {
		return fld.Name
	}
	return name
}
