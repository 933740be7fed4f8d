package session

import (
	"regexp"
	"strconv"
	"strings"
)

// Device describes the host the session runs on
type Device struct {
	UserAgent string
	Platform  string
	Secure    bool // served over https or an equivalent secure context
	HasNFC    bool
}

// CompatibilityReport is logged before discovery and returned to the caller
type CompatibilityReport struct {
	UserAgent    string   `json:"userAgent"`
	Platform     string   `json:"platform"`
	IsIOS        bool     `json:"isIOS"`
	IsSecure     bool     `json:"isSecure"`
	HasNFC       bool     `json:"hasNFC"`
	IsIPhone     bool     `json:"isIPhone"`
	IsSafari     bool     `json:"isSafari"`
	IOS15_4Plus  bool     `json:"isIOS15_4Plus"`
	Compatible   bool     `json:"compatible"`
	Warnings     []string `json:"warnings,omitempty"`
	Incompatible []string `json:"incompatible,omitempty"`
}

const (
	minIOSMajor = 15
	minIOSMinor = 4
)

var (
	iosPattern = regexp.MustCompile(`iPad|iPhone|iPod`)
	iosVersion = regexp.MustCompile(`OS (\d+)_(\d+)`)
)

// CheckCompatibility applies the tap to pay device rules: an iPhone in a
// secure context. Browser and OS version problems are warnings only.
func CheckCompatibility(d Device) CompatibilityReport {
	ua := d.UserAgent
	report := CompatibilityReport{
		UserAgent: ua,
		Platform:  d.Platform,
		IsIOS:     iosPattern.MatchString(ua),
		IsSecure:  d.Secure,
		HasNFC:    d.HasNFC,
		IsIPhone:  strings.Contains(ua, "iPhone"),
		IsSafari:  strings.Contains(ua, "Safari") && !strings.Contains(ua, "Chrome") && !strings.Contains(ua, "CriOS"),
	}
	report.IOS15_4Plus = iosAtLeast(ua, minIOSMajor, minIOSMinor)

	if !report.IsIPhone {
		report.Incompatible = append(report.Incompatible, "Device not compatible with Tap to Pay")
	}
	if !report.IsSecure {
		report.Incompatible = append(report.Incompatible, "Tap to Pay requires a secure context")
	}
	if !report.IsSafari {
		report.Warnings = append(report.Warnings, "Tap to Pay works best in Safari browser")
	}
	if report.IsIPhone && !report.IOS15_4Plus {
		report.Warnings = append(report.Warnings, "Tap to Pay needs iOS 15.4 or later")
	}
	report.Compatible = len(report.Incompatible) == 0
	return report
}

func iosAtLeast(ua string, major, minor int) bool {
	m := iosVersion.FindStringSubmatch(ua)
	if m == nil {
		return false
	}
	gotMajor, _ := strconv.Atoi(m[1])
	gotMinor, _ := strconv.Atoi(m[2])
	return gotMajor > major || (gotMajor == major && gotMinor >= minor)
}
