// Package notify holds the notification delivery channel and its adapters.
package notify

import (
	"errors"
	"log"
)

// Notifier delivers one notification to everyone in a family. Delivery is
// best-effort: the scheduler retries pending reminders on the next tick if
// Send fails.
type Notifier interface {
	Send(familyID, title, body string, data map[string]string) error
}

// Multi fans one notification out to several channels. A channel failure does
// not stop the others; Send fails only if every channel failed.
type Multi []Notifier

func (m Multi) Send(familyID, title, body string, data map[string]string) error {
	if len(m) == 0 {
		return errors.New("no notification channel configured")
	}

	var errs []error
	for _, n := range m {
		if err := n.Send(familyID, title, body, data); err != nil {
			log.Printf("Notify channel error: %v", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(m) {
		return errors.Join(errs...)
	}
	return nil
}
