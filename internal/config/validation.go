package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var sharingNameRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("sharingname", func(fl validator.FieldLevel) bool {
		return sharingNameRe.MatchString(fl.Field().String())
	})
}

func validateStruct(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%s: failed '%s' validation (value: %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return err
	}
	return nil
}
