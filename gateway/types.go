package gateway

import (
	"encoding/json"
)

// User is the authenticated identity's displayable profile.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Role     string `json:"role,omitempty"`
	ClinicID string `json:"clinicId,omitempty"`
	DoctorID string `json:"doctorId,omitempty"`
}

// UnmarshalJSON accepts the snake_case and "_id" spellings some backends emit.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		MongoID     string `json:"_id"`
		DisplayName string `json:"displayName"`
		ClinicSnake string `json:"clinic_id"`
		DoctorSnake string `json:"doctor_id"`
		AvatarURL   string `json:"avatarUrl"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	if u.Name == "" {
		u.Name = aux.DisplayName
	}
	if u.ClinicID == "" {
		u.ClinicID = aux.ClinicSnake
	}
	if u.DoctorID == "" {
		u.DoctorID = aux.DoctorSnake
	}
	if u.Avatar == "" {
		u.Avatar = aux.AvatarURL
	}
	return nil
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body.
type Registration struct {
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// ProfilePatch carries the fields to change; nil fields are left untouched.
type ProfilePatch struct {
	Name     *string `json:"name,omitempty"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Avatar   *string `json:"avatar,omitempty"`
}

// PasswordChange is the change-password request body.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// TokenPair is the result of a refresh. RefreshToken is empty when the service did not
// rotate it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult is the result of login and register.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         User
}
