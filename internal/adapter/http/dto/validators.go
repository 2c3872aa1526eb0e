package dto

import (
	"errors"
	"html"
	"reflect"
	"regexp"
	"strings"

	"savings-lockbox/internal/core/domain"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidSignatureEncoding is returned for a signature that is not base58.
var ErrInvalidSignatureEncoding = errors.New("signature must be base58")

var safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("address", validateAddress)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

// validateAddress accepts a base58 string that decodes to 32 bytes.
func validateAddress(fl validator.FieldLevel) bool {
	_, err := domain.ParseAddress(strings.TrimSpace(fl.Field().String()))
	return err == nil
}

// DecodeSignature decodes a base58 signature.
func DecodeSignature(s string) ([]byte, error) {
	raw := base58.Decode(strings.TrimSpace(s))
	if len(raw) == 0 {
		return nil, ErrInvalidSignatureEncoding
	}
	return raw, nil
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
