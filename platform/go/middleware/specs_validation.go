package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
)

// ValidateAuthenticationViaSwagger satisfies operations declaring bearerAuth.
// Token verification itself happens in auth.JWT; this only checks the header shape.
func ValidateAuthenticationViaSwagger(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "bearerAuth" {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errors.New("no request in validation input")
	}
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return errors.New("missing or invalid Authorization header")
	}
	return nil
}

// SpecValidator rejects requests that do not match the OpenAPI contract with
// an RFC 7807 problem.
func SpecValidator(spec *openapi3.T) func(http.Handler) http.Handler {
	if spec == nil {
		panic("spec validator: openapi document is required")
	}
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: ValidateAuthenticationViaSwagger,
		},
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			problemType := problemdetails.TypeValidation
			title := "Invalid request"
			switch statusCode {
			case http.StatusUnauthorized:
				problemType, title = problemdetails.TypeUnauthorized, "Unauthorized"
			case http.StatusNotFound:
				problemType, title = problemdetails.TypeNotFound, "Resource not found"
			}
			problemdetails.Write(w, problemdetails.New(title, message, problemType, statusCode))
		},
	})
}
