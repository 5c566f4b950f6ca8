package main

import "fmt"

// consoleNotifier prints proximity alerts to the terminal. It stands in
// for the host platform's notification service.
type consoleNotifier struct {
	permission string
}

func newConsoleNotifier(enabled bool) *consoleNotifier {
	if !enabled {
		return &consoleNotifier{permission: "denied"}
	}
	return &consoleNotifier{permission: "granted"}
}

func (n *consoleNotifier) Permission() string { return n.permission }

func (n *consoleNotifier) RequestPermission() error {
	if n.permission == "default" {
		n.permission = "granted"
	}
	return nil
}

func (n *consoleNotifier) Show(title, body string) error {
	fmt.Printf("\a[nearby] %s: %s\n", title, body)
	return nil
}
