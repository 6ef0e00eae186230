package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxRequestBody caps JSON request bodies on the user-facing routes.
const maxRequestBody = 64 << 10

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	_ = v.RegisterValidation("price_id", func(fl validator.FieldLevel) bool {
		return strings.HasPrefix(fl.Field().String(), "price_")
	})
	return &requestValidator{validate: v}
}

func (v *requestValidator) Struct(s any) error {
	return v.validate.Struct(s)
}

// decodeBody decodes an optional JSON body into dest and validates it.
// An empty body leaves dest untouched.
func (v *requestValidator) decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return v.Struct(dest)
}

// validationMessage renders the first validation failure without leaking
// struct internals.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request format"
	}
	e := verrs[0]
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return field + " is required"
	case "uuid", "uuid4":
		return field + " must be a UUID"
	case "price_id":
		return field + " must be a price identifier"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, e.Param())
	default:
		return field + " is invalid"
	}
}

type checkoutRequest struct {
	PriceID string `json:"priceId" validate:"omitempty,max=255,price_id"`
}

type videoTokenRequest struct {
	VideoID       string `json:"video_id" validate:"omitempty,uuid"`
	LegacyVideoID string `json:"videoId" validate:"omitempty,uuid"`
}

func (r videoTokenRequest) id() string {
	if r.VideoID != "" {
		return r.VideoID
	}
	return r.LegacyVideoID
}
