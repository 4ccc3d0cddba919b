package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	envIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(yamlName)

		_ = v.RegisterValidation("env_id", func(fl validator.FieldLevel) bool {
			return envIDPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("memory", func(fl validator.FieldLevel) bool {
			_, err := units.RAMInBytes(fl.Field().String())
			return err == nil
		})

		validateInst = v
	})
	return validateInst
}

func convertValidationError(err error) error {
	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := strings.TrimPrefix(ve.Namespace(), "Environment.")
		if ve.Tag() == "required" || ve.Tag() == "required_if" {
			return fmt.Errorf("%s is required", field)
		}
		return fmt.Errorf("%s failed validation for tag '%s'", field, ve.Tag())
	}
	return err
}

// yamlName reports fields by their config key.
func yamlName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}
