package middleware

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// +639XXXXXXXXX, 639XXXXXXXXX or 09XXXXXXXXX, separators allowed.
var phMobile = regexp.MustCompile(`^(\+?63|0)9\d{9}$`)

func validPHPhone(fl validator.FieldLevel) bool {
	digits := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(fl.Field().String())
	return phMobile.MatchString(digits)
}

func validHHMM(fl validator.FieldLevel) bool {
	_, err := time.Parse("15:04", fl.Field().String())
	return err == nil
}

// RegisterValidators installs the custom binding tags and makes field errors
// use JSON names. It is safe to call more than once.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("phphone", validPHPhone); err != nil {
		return err
	}
	return v.RegisterValidation("hhmm", validHHMM)
}
