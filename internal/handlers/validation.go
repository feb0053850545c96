package handlers

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/tourlink/marketplace-backend/internal/models"
)

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// RegisterValidators installs the marketplace's custom binding tags on gin's
// validator engine. Call once before serving.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	v.RegisterTagNameFunc(jsonTagName)
	if err := v.RegisterValidation("payment_method", validatePaymentMethod); err != nil {
		return err
	}
	return v.RegisterValidation("iso_currency", validateCurrency)
}

func validatePaymentMethod(fl validator.FieldLevel) bool {
	return models.PaymentMethod(fl.Field().String()).IsValid()
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

// jsonTagName reports fields by their JSON name in validation errors
func jsonTagName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}
