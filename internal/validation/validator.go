package validation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Validator validates structs via `validate` tags. Supported rules:
// required, email, min=N, max=N (string length or numeric value).
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates a struct
func (v *Validator) Validate(s interface{}) error {
	val := reflect.ValueOf(s)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return fmt.Errorf("validate expects a struct")
	}

	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		tag := fieldType.Tag.Get("validate")

		if tag == "" {
			continue
		}

		if err := v.validateField(field, tag); err != nil {
			return fmt.Errorf("%s: %w", fieldType.Name, err)
		}
	}

	return nil
}

// validateField validates a single field
func (v *Validator) validateField(field reflect.Value, tag string) error {
	rules := strings.Split(tag, ",")

	// Optional pointer fields are only validated when set.
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			for _, rule := range rules {
				if rule == "required" {
					return fmt.Errorf("field is required")
				}
			}
			return nil
		}
		field = field.Elem()
	}

	for _, rule := range rules {
		parts := strings.SplitN(rule, "=", 2)
		ruleName := parts[0]

		switch ruleName {
		case "required":
			if field.IsZero() {
				return fmt.Errorf("field is required")
			}

		case "email":
			if field.Kind() == reflect.String {
				email := field.String()
				if email == "" {
					// Emptiness is the required rule's concern.
					continue
				}
				if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") || strings.HasSuffix(email, "@") {
					return fmt.Errorf("invalid email format")
				}
			}

		case "min":
			if len(parts) < 2 {
				continue
			}
			if err := checkBound(field, parts[1], true); err != nil {
				return err
			}

		case "max":
			if len(parts) < 2 {
				continue
			}
			if err := checkBound(field, parts[1], false); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkBound enforces a min or max bound on a string length or numeric value
func checkBound(field reflect.Value, arg string, isMin bool) error {
	switch field.Kind() {
	case reflect.String:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil
		}
		l := len(field.String())
		if isMin && l < n {
			return fmt.Errorf("minimum length is %d", n)
		}
		if !isMin && l > n {
			return fmt.Errorf("maximum length is %d", n)
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil
		}
		val := field.Int()
		if isMin && val < n {
			return fmt.Errorf("minimum value is %d", n)
		}
		if !isMin && val > n {
			return fmt.Errorf("maximum value is %d", n)
		}

	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil
		}
		val := field.Float()
		if isMin && val < n {
			return fmt.Errorf("minimum value is %g", n)
		}
		if !isMin && val > n {
			return fmt.Errorf("maximum value is %g", n)
		}
	}

	return nil
}
