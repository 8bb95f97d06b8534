package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// moneyScale is the number of fractional digits an amount may carry
const moneyScale = 2

// SetupValidator configures gin's validator: JSON field names in errors,
// decimals validated through their string form, and the money rule
func SetupValidator() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	RegisterValidations(v)
	return nil
}

// RegisterValidations installs the custom rules on v
func RegisterValidations(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("money", validateMoney)
}

// validateMoney accepts non-negative amounts with at most two decimals
func validateMoney(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.Sign() >= 0 && d.Equal(d.Round(moneyScale))
}

// FormatValidationErrors turns a failed bind into the standard 400 body.
// Rule violations list each field; anything else (malformed JSON, a bad
// uuid, a wrong type) is reported as one message.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return dto.Invalid("Malformed request: "+err.Error(), requestID, nil)
	}
	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, dto.ValidationDetail{Field: fe.Field(), Message: ruleMessage(fe)})
	}
	return dto.Invalid("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 for a failed bind
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

var ruleMessages = map[string]string{
	"required": "This field is required",
	"money":    "Must be a non-negative amount with at most 2 decimals",
	"datetime": "Must be a date formatted as %s",
	"oneof":    "Must be one of: %s",
	"gt":       "Must be greater than %s",
	"gte":      "Must be greater than or equal to %s",
	"min":      "Must be at least %s",
	"max":      "Must be at most %s",
}

func ruleMessage(fe validator.FieldError) string {
	msg, ok := ruleMessages[fe.Tag()]
	if !ok {
		return "Invalid value"
	}
	if !strings.Contains(msg, "%s") {
		return msg
	}
	msg = fmt.Sprintf(msg, fe.Param())
	if fe.Kind() == reflect.String && (fe.Tag() == "min" || fe.Tag() == "max") {
		msg += " characters"
	}
	return msg
}
