package validator

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// InvalidBody is reported when the payload is not decodable JSON.
const InvalidBody = "Invalid request body"

var (
	trans ut.Translator
	once  sync.Once
)

// InitValidator configures gin's validator engine to report json field
// names and english messages. Safe to call more than once.
func InitValidator() {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ = uni.GetTranslator("en")

		_ = en_translations.RegisterDefaultTranslations(v, trans)
	})
}

// Fields converts validation failures into a map keyed by field path,
// e.g. "messages[0].role". Nil when err is not a validation error.
func Fields(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		ns := e.Namespace()

		// drop the root struct name
		if i := strings.Index(ns, "."); i != -1 {
			ns = ns[i+1:]
		}

		msg := e.Error()
		if trans != nil {
			msg = e.Translate(trans)
		}

		fields[ns] = msg
	}
	return fields
}

// Message flattens a bind error into the single line rendered to callers.
func Message(err error) string {
	fields := Fields(err)
	if len(fields) == 0 {
		return InvalidBody
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}
