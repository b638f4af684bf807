package middleware

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-api/internal/service/slot"
)

var registerOnce sync.Once

// RegisterValidators installs the clinicdate and clinictime binding tags and
// reports fields by their json names. Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("unexpected validator engine")
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})

		if err = v.RegisterValidation("clinicdate", validateClinicDate); err != nil {
			return
		}
		err = v.RegisterValidation("clinictime", validateClinicTime)
	})
	return err
}

func validateClinicDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(slot.DateLayout, fl.Field().String())
	return err == nil
}

func validateClinicTime(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	for _, layout := range []string{slot.TimeLayout, "15:04:05"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

var tagMessages = map[string]string{
	"required":   "is required",
	"email":      "must be a valid email address",
	"min":        "is too short",
	"max":        "is too long",
	"oneof":      "must be one of: %s",
	"clinicdate": "must be a date formatted as YYYY-MM-DD",
	"clinictime": "must be a time formatted as HH:MM",
}

// BindingErrors flattens a binding failure into readable messages.
func BindingErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"invalid request body"}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		tmpl, ok := tagMessages[fe.Tag()]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
			continue
		}
		if strings.Contains(tmpl, "%s") {
			tmpl = fmt.Sprintf(tmpl, fe.Param())
		}
		msgs = append(msgs, fe.Field()+" "+tmpl)
	}
	return msgs
}
