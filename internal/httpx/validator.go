package httpx

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	orderIDRegex = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,128}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("order_id", func(fl validator.FieldLevel) bool {
		return orderIDRegex.MatchString(fl.Field().String())
	})
}

// ValidateStruct runs struct tag validation and returns one detail per failing field.
func ValidateStruct(s interface{}) []ErrorDetail {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ErrorDetail{{Field: "", Message: err.Error()}}
	}

	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		param := fe.Param()

		var message string
		switch fe.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", field)
		case "uuid", "uuid4":
			message = fmt.Sprintf("%s must be a valid UUID", field)
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", field, param)
		case "min":
			message = fmt.Sprintf("%s must be at least %s", field, param)
		case "max":
			message = fmt.Sprintf("%s must be at most %s", field, param)
		case "gt", "gte":
			message = fmt.Sprintf("%s must be greater than %s", field, strings.TrimSuffix(param, "="))
		case "order_id":
			message = fmt.Sprintf("%s may only contain letters, digits and _-:.", field)
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}

		details = append(details, ErrorDetail{Field: field, Message: message})
	}
	return details
}
