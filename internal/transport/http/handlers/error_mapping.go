package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/arklim/octopis-auth/internal/transport/http/middleware"
)

const (
	internalErrorMessage    = "Internal server error"
	validationFailedMessage = "Validation failed"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves err against cases. Unmatched errors become a
// 500 and are attached to the gin context for the access log.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase) {
	for _, cs := range cases {
		if cs.Err != nil && errors.Is(err, cs.Err) {
			middleware.AbortWithError(c, cs.Status, cs.Message, nil)
			return
		}
	}

	_ = c.Error(err)
	middleware.AbortWithError(c, http.StatusInternalServerError, internalErrorMessage, nil)
}

// bindJSON decodes the body into dst and answers 422 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	useJSONFieldNames()

	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	middleware.AbortWithError(c, http.StatusUnprocessableEntity, validationFailedMessage, fieldErrors(err))
	return false
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, FieldError{Field: fe.Field(), Message: describeRule(fe)})
		}
		return out
	}
	if errors.Is(err, io.EOF) {
		return []FieldError{{Field: "body", Message: "request body is required"}}
	}
	return []FieldError{{Field: "body", Message: "malformed JSON body"}}
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "email":
		return "value is not a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

var fieldNamesOnce sync.Once

// useJSONFieldNames makes validation errors report json names instead of Go field names.
func useJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}
