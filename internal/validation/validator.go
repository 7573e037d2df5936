package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-draftsync/internal/drafts"
)

// New returns a validator with the draft-specific tags and struct checks
// registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// form_type: the value names a registered registration form.
	_ = v.RegisterValidation("form_type", func(fl validatorv10.FieldLevel) bool {
		_, err := drafts.LookupSchema(fl.Field().String())
		return err == nil
	})

	// reject fields the form's schema would silently drop, so clients notice
	// a renamed input instead of losing it from every draft.
	v.RegisterStructValidation(updateStateStructValidation, UpdateStateRequest{})

	return v
}

func updateStateStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateStateRequest)

	schema, err := drafts.LookupSchema(req.FormType)
	if err != nil {
		// reported by the form_type tag
		return
	}
	for _, name := range schema.Unknown(req.FormData, req.Flags) {
		sl.ReportError(name, name, name, "known_field", fmt.Sprintf("not a field of %s", req.FormType))
	}
}
