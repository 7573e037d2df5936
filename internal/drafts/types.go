package drafts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidKey is returned when a key is missing its user or form type.
	ErrInvalidKey = errors.New("invalid draft key")
	// ErrUnknownFormType is returned for form types without a registered schema.
	ErrUnknownFormType = errors.New("unknown form type")
	// ErrNewerDraft is returned by conditional deletes when the stored draft
	// was written after the cutoff.
	ErrNewerDraft = errors.New("draft updated after cutoff")
)

// Key identifies a draft. There is at most one draft per (user, form type).
type Key struct {
	UserID   string
	FormType string
}

// Validate checks both parts of the key are present.
func (k Key) Validate() error {
	if k.UserID == "" || k.FormType == "" {
		return fmt.Errorf("%w: user_id=%q form_type=%q", ErrInvalidKey, k.UserID, k.FormType)
	}
	return nil
}

func (k Key) String() string { return k.UserID + "/" + k.FormType }

// Payload is the resumable snapshot of a registration form.
type Payload struct {
	FormData map[string]interface{} `json:"form_data" dynamodbav:"form_data"`
	Flags    map[string]bool        `json:"flags" dynamodbav:"flags"`
}

// Clone copies both maps so later edits by the caller do not leak into a
// scheduled write.
func (p Payload) Clone() Payload {
	out := Payload{
		FormData: make(map[string]interface{}, len(p.FormData)),
		Flags:    make(map[string]bool, len(p.Flags)),
	}
	for k, v := range p.FormData {
		out.FormData[k] = v
	}
	for k, v := range p.Flags {
		out.Flags[k] = v
	}
	return out
}

// Record is the shape persisted by the durable stores.
type Record struct {
	UserID      string    `dynamodbav:"user_id" json:"user_id"`     // PK
	FormType    string    `dynamodbav:"form_type" json:"form_type"` // SK
	Payload     Payload   `dynamodbav:"payload" json:"payload"`
	UpdatedAt   time.Time `dynamodbav:"updated_at" json:"updated_at"`
	UpdatedAtMs int64     `dynamodbav:"updated_at_ms" json:"-"`        // numeric copy for conditional deletes
	ExpiresAt   int64     `dynamodbav:"expires_at,omitempty" json:"-"` // TTL epoch seconds
}

// Key returns the record's draft key.
func (r Record) Key() Key {
	return Key{UserID: r.UserID, FormType: r.FormType}
}

func newRecord(key Key, payload Payload, updatedAt time.Time, retention time.Duration) Record {
	rec := Record{
		UserID:      key.UserID,
		FormType:    key.FormType,
		Payload:     payload,
		UpdatedAt:   updatedAt.UTC(),
		UpdatedAtMs: updatedAt.UnixMilli(),
	}
	if retention > 0 {
		rec.ExpiresAt = updatedAt.Add(retention).Unix()
	}
	return rec
}
