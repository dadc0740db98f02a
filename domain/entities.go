package domain

// User is the traveler profile snapshot held by the client.
type User struct {
	ID                uint   `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// Valid reports whether a persisted user snapshot is structurally usable.
func (u *User) Valid() bool {
	return u != nil && u.ID != 0 && u.Email != ""
}

// Credentials carries a login submission. Never persisted.
type Credentials struct {
	Email    string
	Password string
}

// Registration carries a registration submission. Never persisted.
type Registration struct {
	Name           string
	Email          string
	Phone          string
	Password       string
	ProfilePicture *Upload
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	Name           string
	Phone          string
	ProfilePicture *Upload
}

// Upload is an in-memory file attachment for multipart requests.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Session is the client-held authentication state.
// OTPStage true implies PendingEmail is set and the session is not yet
// authenticated; an authenticated session always carries a token.
type Session struct {
	Token        string
	User         *User
	Loading      bool
	Error        string
	OTPStage     bool
	PendingEmail string
}

// IsAuthenticated reports whether a user profile is present.
func (s Session) IsAuthenticated() bool {
	return s.User != nil
}

// Outcome is the uniform result of every auth flow operation. Operations
// never leak errors past their boundary; failures become Success=false
// with a human-readable message.
type Outcome struct {
	Success     bool
	Message     string
	OTPRequired bool
	User        *User
	Fields      map[string]string
}

// OK builds a successful outcome.
func OK(message string) *Outcome {
	return &Outcome{Success: true, Message: message}
}

// Fail builds a failed outcome.
func Fail(message string) *Outcome {
	return &Outcome{Success: false, Message: message}
}
