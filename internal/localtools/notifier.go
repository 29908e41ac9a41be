package localtools

import (
	"github.com/gen2brain/beeep"
)

// Notifier surfaces a notification to the user.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier shows native desktop notifications.
type DesktopNotifier struct {
	// AppIcon is an optional path to an icon shown with the notification.
	AppIcon string
}

// Notify implements Notifier.
func (n DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, n.AppIcon)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, message string) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(title, message string) error {
	return f(title, message)
}
