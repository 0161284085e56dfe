package api

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
	"github.com/zulandar/voicedesk/internal/storage"
)

// fieldError is one entry of the errors array in a 400 response.
type fieldError struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

var jsonNamesOnce sync.Once

// useFieldJSONNames makes validator report fields by their json tag so error
// entries match the request body keys.
func useFieldJSONNames() {
	jsonNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

// invalidInput writes a 400 with field-level detail for a bind error.
func invalidInput(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"message": "Invalid input",
		"errors":  fieldErrors(err),
	})
}

func fieldErrors(err error) []fieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fieldError{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: describe(fe),
			})
		}
		return out
	}
	if errors.Is(err, io.EOF) {
		return []fieldError{{Message: "request body is required"}}
	}
	if errors.Is(err, storage.ErrInvalidInput) {
		return []fieldError{{Message: strings.TrimPrefix(err.Error(), storage.ErrInvalidInput.Error()+": ")}}
	}
	return []fieldError{{Message: "malformed JSON body"}}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a UUID", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// emptyBody reports whether a bind failed only because there was no body.
func emptyBody(err error) bool {
	return errors.Is(err, io.EOF)
}

// respondError maps storage errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a generic 500.
func (s *server) respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Conversation not found"})
	case errors.Is(err, storage.ErrConversationEnded):
		c.JSON(http.StatusConflict, gin.H{"message": "Conversation already ended"})
	case errors.Is(err, storage.ErrInvalidInput):
		invalidInput(c, err)
	default:
		s.internalError(c, op, err)
	}
}

func (s *server) internalError(c *gin.Context, op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}
