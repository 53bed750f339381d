package api

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"pharmadesk/m/domain"
	"pharmadesk/m/internal/store"
)

const dateLayout = "2006-01-02"

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage reports the first failing field.
func validationMessage(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "email":
			return fe.Field() + " must be a valid email"
		case "min":
			return fe.Field() + " must be at least " + fe.Param()
		case "max":
			return fe.Field() + " must be at most " + fe.Param()
		case "oneof":
			return fe.Field() + " must be one of " + fe.Param()
		}
		return fe.Field() + " is invalid"
	}
	return "invalid request"
}

// idParam parses a positive id from the URL, answering 400 when it is not one.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt returns an optional positive id from the query string.
func queryInt(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, domain.Errorf(domain.CodeInvalidInput, "invalid %s", name)
	}
	return &v, nil
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.CodeInvalidInput, "%s must be in YYYY-MM-DD format", name)
	}
	return t, nil
}

// dateRange reads from and to. Both are optional and to is inclusive.
func dateRange(r *http.Request) (store.DateRange, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return store.DateRange{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return store.DateRange{}, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return store.DateRange{}, domain.Errorf(domain.CodeInvalidInput, "to must not be before from")
	}
	return store.DateRange{From: from, To: to}, nil
}

func page(r *http.Request) store.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return store.Page{Limit: limit, Offset: offset}
}

// date is a calendar day in JSON, written as YYYY-MM-DD.
type date struct {
	time.Time
}

func (d *date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return domain.Errorf(domain.CodeInvalidInput, "dates must be in YYYY-MM-DD format")
		}
	}
	d.Time = t.UTC()
	return nil
}

func (d *date) ptr() *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func (d *date) value() time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
