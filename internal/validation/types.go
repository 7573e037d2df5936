package validation

// FormTypeParams is the :formType path segment of draft routes.
type FormTypeParams struct {
	FormType string `uri:"formType" validate:"required,form_type"`
}

// SessionParams is the :id path segment of session routes.
type SessionParams struct {
	SessionID string `uri:"id" validate:"required,uuid4"`
}

// UpdateStateRequest is the payload for PUT /sessions/:id/state.
type UpdateStateRequest struct {
	FormType string                 `json:"-" validate:"required,form_type"` // taken from the session, not the body
	FormData map[string]interface{} `json:"form_data"`
	Flags    map[string]bool        `json:"flags,omitempty"`
}
