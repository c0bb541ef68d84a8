package manifest

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidEntry marks an entry excluded from the catalog.
	ErrInvalidEntry = errors.New("invalid manifest entry")
	// ErrDuplicate marks an id or name already claimed by an earlier entry.
	ErrDuplicate = errors.New("duplicate manifest key")
)

var (
	gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Issue records why one entry was left out of a catalog.
type Issue struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Err    error  `json:"-"`
}

func (i Issue) Error() string {
	if i.ID != "" {
		return fmt.Sprintf("%s: games[%d] %q: %v", i.Source, i.Index, i.ID, i.Err)
	}
	return fmt.Sprintf("%s: games[%d]: %v", i.Source, i.Index, i.Err)
}

func (i Issue) Unwrap() error { return i.Err }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("gameid", func(fl validator.FieldLevel) bool {
		return gameIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("envkey", func(fl validator.FieldLevel) bool {
		return envKeyPattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateProbe, Probe{})
	v.RegisterStructValidation(validateQuit, Quit{})
	return v
}

func validateProbe(sl validator.StructLevel) {
	p := sl.Current().Interface().(Probe)
	switch p.ProbeType() {
	case ProbeHTTP, ProbeTCP:
		if p.Port <= 0 {
			sl.ReportError(p.Port, "Port", "port", "required_for_network_probe", p.Type)
		}
	}
}

func validateQuit(sl validator.StructLevel) {
	q := sl.Current().Interface().(Quit)
	if q.QuitType() == QuitHTTP && q.URL == "" {
		sl.ReportError(q.URL, "URL", "url", "required_for_http_quit", q.Type)
	}
}

// validateEntry checks one entry in isolation.
func validateEntry(v *validator.Validate, e *Entry) error {
	if err := v.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidEntry, f.Namespace(), f.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}
