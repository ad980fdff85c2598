// Package notifications delivers human-facing alerts over ntfy.
package notifications
