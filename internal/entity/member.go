package entity

import "time"

// Member is team staff: manager, coach, treasurer, etc. Every team has at
// least one is_admin=true member after bootstrap (§4.5 step 3).
type Member struct {
	MemberID         string `validate:"required"`
	TeamID           string `validate:"required"`
	TelegramID       int64  // 0 until activation
	Name             string `validate:"required,min=1,max=120"`
	Phone            string `validate:"required,e164,e164cc"`
	Email            string `validate:"omitempty,email"`
	Role             string `validate:"required,min=1,max=60"`
	EmergencyContact string
	IsAdmin          bool
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UpdatableField enumerates the fields `/update` may change (§9 Open
// Questions: field-by-field, not free-form).
type UpdatableField string

const (
	FieldPhone            UpdatableField = "phone"
	FieldEmail            UpdatableField = "email"
	FieldPosition         UpdatableField = "position"
	FieldEmergencyContact UpdatableField = "emergency_contact"
)

var updatableFields = map[UpdatableField]struct{}{
	FieldPhone: {}, FieldEmail: {}, FieldPosition: {}, FieldEmergencyContact: {},
}

// ValidUpdateField reports whether field is one of the four `/update` targets.
func ValidUpdateField(field string) bool {
	_, ok := updatableFields[UpdatableField(field)]
	return ok
}
