package validation

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/zfogg/daybook/internal/models"
)

var registerOnce sync.Once

// RegisterCustomValidators installs the date, weekday and timezone tags on gin's
// validator and makes field errors report JSON names. Safe to call repeatedly.
func RegisterCustomValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})

		_ = v.RegisterValidation("date", validateDate)
		_ = v.RegisterValidation("weekday", validateWeekday)
		_ = v.RegisterValidation("timezone", validateTimezone)
	})
}

// Struct validates obj with the same engine and tags the HTTP binding uses
func Struct(obj interface{}) error {
	RegisterCustomValidators()
	return binding.Validator.ValidateStruct(obj)
}

func validateDate(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}

func validateWeekday(fl validator.FieldLevel) bool {
	return models.IsWeekdayName(fl.Field().String())
}

func validateTimezone(fl validator.FieldLevel) bool {
	return IsTimezone(fl.Field().String())
}

// IsTimezone reports whether tz is a loadable IANA zone name
func IsTimezone(tz string) bool {
	if tz == "" || tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
