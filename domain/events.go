package domain

import "time"

// SessionEventType defines the type of session event.
type SessionEventType string

const (
	// Rehydration events
	SessionRehydratedEvent SessionEventType = "SESSION_REHYDRATED"

	// Login / registration events
	OTPChallengedEvent    SessionEventType = "OTP_CHALLENGED"
	LoginCompletedEvent   SessionEventType = "LOGIN_COMPLETED"
	RegistrationDoneEvent SessionEventType = "REGISTRATION_COMPLETED"
	OperationFailedEvent  SessionEventType = "OPERATION_FAILED"
	UserLogoutEvent       SessionEventType = "USER_LOGOUT"
	ProfileRefreshedEvent SessionEventType = "PROFILE_REFRESHED"
)

// SessionEvent is published by the session store on every state transition
// so front-ends can re-render from the new snapshot.
type SessionEvent struct {
	EventType SessionEventType
	Email     string
	Timestamp time.Time
	ErrorMsg  string
	Success   bool
}

// NewSessionEvent creates a session event with common fields populated.
func NewSessionEvent(eventType SessionEventType) *SessionEvent {
	return &SessionEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Success:   true,
	}
}

// WithError marks the event failed and records the message.
func (e *SessionEvent) WithError(msg string) *SessionEvent {
	e.Success = false
	e.ErrorMsg = msg
	return e
}

// WithEmail sets the email field.
func (e *SessionEvent) WithEmail(email string) *SessionEvent {
	e.Email = email
	return e
}
