package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequired(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"required"`
	}

	assert.Error(t, v.Validate(req{}))
	assert.NoError(t, v.Validate(req{Name: "x"}))
	assert.NoError(t, v.Validate(&req{Name: "x"}))
}

func TestValidateEmail(t *testing.T) {
	v := NewValidator()

	type req struct {
		Email string `json:"email" validate:"email"`
	}

	assert.NoError(t, v.Validate(req{Email: "a@b.test"}))
	assert.NoError(t, v.Validate(req{})) // optional unless required
	assert.Error(t, v.Validate(req{Email: "not-an-email"}))
	assert.Error(t, v.Validate(req{Email: "@b.test"}))
}

func TestValidateStringBounds(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"min=3,max=5"`
	}

	assert.Error(t, v.Validate(req{Name: "ab"}))
	assert.NoError(t, v.Validate(req{Name: "abc"}))
	assert.NoError(t, v.Validate(req{Name: "abcde"}))
	assert.Error(t, v.Validate(req{Name: "abcdef"}))
}

func TestValidateNumericBounds(t *testing.T) {
	v := NewValidator()

	type req struct {
		Count     int     `json:"count" validate:"min=1,max=10"`
		Threshold float32 `json:"threshold" validate:"min=0,max=1"`
	}

	assert.Error(t, v.Validate(req{Count: 0, Threshold: 0.5}))
	assert.NoError(t, v.Validate(req{Count: 1, Threshold: 0.5}))
	assert.Error(t, v.Validate(req{Count: 11, Threshold: 0.5}))
	assert.Error(t, v.Validate(req{Count: 5, Threshold: 1.5}))
}

func TestValidateOptionalPointerFields(t *testing.T) {
	v := NewValidator()

	type req struct {
		Max *int `json:"max,omitempty" validate:"min=1"`
	}

	// Nil pointers without a required rule are skipped.
	assert.NoError(t, v.Validate(req{}))

	bad := 0
	assert.Error(t, v.Validate(req{Max: &bad}))

	good := 3
	assert.NoError(t, v.Validate(req{Max: &good}))
}

func TestValidateRequiredPointer(t *testing.T) {
	v := NewValidator()

	type req struct {
		Max *int `json:"max" validate:"required"`
	}

	assert.Error(t, v.Validate(req{}))

	val := 1
	assert.NoError(t, v.Validate(req{Max: &val}))
}
