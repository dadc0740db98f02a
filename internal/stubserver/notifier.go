package stubserver

import (
	"log"
	"sync"

	"github.com/tourverse/traveler/domain"
)

// LogNotifier implements domain.Notifier by writing the message to the
// process log. The stub has no real mail transport.
type LogNotifier struct{}

// SendEmail logs the message instead of delivering it.
func (LogNotifier) SendEmail(to, subject, body string) error {
	log.Printf("MAIL to=%s subject=%q body=%q", to, subject, body)
	return nil
}

// CaptureNotifier implements domain.Notifier by recording messages for
// inspection in tests.
type CaptureNotifier struct {
	mu       sync.Mutex
	messages []CapturedMail
}

// CapturedMail is one recorded message.
type CapturedMail struct {
	To      string
	Subject string
	Body    string
}

// NewCaptureNotifier creates an empty capture notifier.
func NewCaptureNotifier() *CaptureNotifier {
	return &CaptureNotifier{}
}

// SendEmail records the message.
func (c *CaptureNotifier) SendEmail(to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, CapturedMail{To: to, Subject: subject, Body: body})
	return nil
}

// Last returns the most recent message sent to the given address.
func (c *CaptureNotifier) Last(to string) (CapturedMail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].To == to {
			return c.messages[i], true
		}
	}
	return CapturedMail{}, false
}

var (
	_ domain.Notifier = LogNotifier{}
	_ domain.Notifier = (*CaptureNotifier)(nil)
)
