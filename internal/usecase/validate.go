package usecase

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"storefront-backend/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func trimBuyer(b domain.BuyerInfo) domain.BuyerInfo {
	b.FirstName = strings.TrimSpace(b.FirstName)
	b.LastName = strings.TrimSpace(b.LastName)
	b.Email = strings.TrimSpace(b.Email)
	b.Address = strings.TrimSpace(b.Address)
	b.City = strings.TrimSpace(b.City)
	b.PostalCode = strings.TrimSpace(b.PostalCode)
	b.Phone = strings.TrimSpace(b.Phone)
	return b
}

// validateCheckout reports every bad field at once.
func validateCheckout(b domain.BuyerInfo, choice domain.PaymentChoice) error {
	fields := map[string]string{}
	if err := validate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	if !choice.Method.Valid() {
		fields["paymentMethod"] = "select a valid choice"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "max":
		return "ensure this value has at most " + fe.Param() + " characters"
	case "min":
		return "ensure this value has at least " + fe.Param() + " characters"
	}
	return "invalid value"
}
