package widget

import (
	"regexp"
	"strings"
)

// Device classes attached to telemetry events.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

var reMobile = regexp.MustCompile(`iphone|ipod|android|blackberry|iemobile|opera mini|windows phone|mobile`)

// ClassifyDevice derives a coarse device class from a user-agent string.
// Android without "mobile" is the tablet convention.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "ipad"),
		strings.Contains(ua, "tablet"),
		strings.Contains(ua, "kindle"),
		strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case reMobile.MatchString(ua):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
