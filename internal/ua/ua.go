// internal/ua/ua.go
//
// User-Agent classification for public page-view metrics.
//
// This wrapper isolates the third-party `github.com/avct/uasurfer` API so
// the rest of the codebase never sees its enums or structs.  Only the
// coarse device class is exported; it is used as a Prometheus label, so
// the set of values is closed.
//
//	bot      crawlers and link unfurlers
//	desktop  computers
//	mobile   phones and wearables
//	tablet   tablets
//	other    TVs, consoles, and anything unparseable
package ua

import (
	surfer "github.com/avct/uasurfer"
)

// Device classes.
const (
	Bot     = "bot"
	Desktop = "desktop"
	Mobile  = "mobile"
	Tablet  = "tablet"
	Other   = "other"
)

// Class returns the device class of a raw User-Agent header.
func Class(raw string) string {
	if raw == "" {
		return Other
	}
	ua := surfer.Parse(raw)
	if ua.IsBot() {
		return Bot
	}
	switch ua.DeviceType {
	case surfer.DeviceComputer:
		return Desktop
	case surfer.DeviceTablet:
		return Tablet
	case surfer.DevicePhone, surfer.DeviceWearable:
		return Mobile
	default:
		return Other
	}
}
