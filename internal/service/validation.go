package service

import (
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

const dateLayout = "2006-01-02"

var yearLabelPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// ValidYearLabel reports whether label is "YYYY-YYYY" with consecutive years.
func ValidYearLabel(label string) bool {
	m := yearLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}

// NewValidator returns a validator with the custom tags used by request models.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerValidations(v)
	return v
}

func registerValidations(v *validator.Validate) {
	_ = v.RegisterValidation("year_label", func(fl validator.FieldLevel) bool {
		return ValidYearLabel(fl.Field().String())
	})
	_ = v.RegisterValidation("mark", func(fl validator.FieldLevel) bool {
		return models.AttendanceMark(fl.Field().String()).Valid()
	})
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, appErrors.Invalid(err, "date must be formatted as YYYY-MM-DD")
	}
	return t, nil
}

// isoWeekday maps Monday..Sunday to 1..7.
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
