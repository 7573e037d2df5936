package drafts

import (
	"fmt"
	"sort"
)

// Registered registration forms.
const (
	FormOrganizerRegistration = "organizer_registration"
	FormExhibitorRegistration = "exhibitor_registration"
)

// Flags shared by both registration forms.
const (
	FlagTermsAccepted = "terms_accepted"
	FlagTermsViewed   = "terms_viewed"
)

// Schema lists the fields and flags of a form that may be kept in a draft.
// Anything else (passwords, uploaded document handles, computed totals) is
// dropped before it reaches a store.
type Schema struct {
	FormType string
	Fields   []string
	Flags    []string
}

var schemas = map[string]Schema{
	FormOrganizerRegistration: {
		FormType: FormOrganizerRegistration,
		Fields: []string{
			"organization_name",
			"contact_name",
			"phone",
			"email",
			"prefecture",
			"city",
			"address",
			"website_url",
			"event_frequency",
			"expected_visitors",
		},
		Flags: []string{FlagTermsAccepted, FlagTermsViewed},
	},
	FormExhibitorRegistration: {
		FormType: FormExhibitorRegistration,
		Fields: []string{
			"shop_name",
			"representative_name",
			"phone",
			"email",
			"genre",
			"menu_description",
			"vehicle_type",
			"vehicle_length_cm",
			"vehicle_width_cm",
			"vehicle_height_cm",
			"power_supply",
			"prefecture",
			"pr_text",
		},
		Flags: []string{FlagTermsAccepted, FlagTermsViewed},
	},
}

// LookupSchema returns the schema registered for formType.
func LookupSchema(formType string) (Schema, error) {
	s, ok := schemas[formType]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownFormType, formType)
	}
	return s, nil
}

// FormTypes returns the registered form types in sorted order.
func FormTypes() []string {
	out := make([]string, 0, len(schemas))
	for ft := range schemas {
		out = append(out, ft)
	}
	sort.Strings(out)
	return out
}

// Snapshot builds a payload containing only the schema's fields and flags.
func (s Schema) Snapshot(formData map[string]interface{}, flags map[string]bool) Payload {
	p := Payload{
		FormData: make(map[string]interface{}, len(s.Fields)),
		Flags:    make(map[string]bool, len(s.Flags)),
	}
	for _, f := range s.Fields {
		if v, ok := formData[f]; ok {
			p.FormData[f] = v
		}
	}
	for _, f := range s.Flags {
		if v, ok := flags[f]; ok {
			p.Flags[f] = v
		}
	}
	return p
}

// Unknown returns the sorted names in formData and flags that the schema
// does not allow.
func (s Schema) Unknown(formData map[string]interface{}, flags map[string]bool) []string {
	allowed := make(map[string]struct{}, len(s.Fields)+len(s.Flags))
	for _, f := range s.Fields {
		allowed[f] = struct{}{}
	}
	for _, f := range s.Flags {
		allowed["flags."+f] = struct{}{}
	}
	var out []string
	for k := range formData {
		if _, ok := allowed[k]; !ok {
			out = append(out, k)
		}
	}
	for k := range flags {
		if _, ok := allowed["flags."+k]; !ok {
			out = append(out, "flags."+k)
		}
	}
	sort.Strings(out)
	return out
}
