package handlers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// bindJSON decodes the body into req and answers 400 when it is malformed or
// a required field is missing. It reports whether the handler may continue.
func bindJSON(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		badRequest(c, requiredMessage(fields...))
		return false
	}

	badRequest(c, "Invalid request body")
	return false
}

func requiredMessage(fields ...string) string {
	if len(fields) == 1 {
		return fields[0] + " is required"
	}
	return strings.Join(fields, " and ") + " are required"
}

// required trims each value and reports whether all are non-empty.
func required(values ...*string) bool {
	ok := true
	for _, v := range values {
		*v = strings.TrimSpace(*v)
		if *v == "" {
			ok = false
		}
	}
	return ok
}
