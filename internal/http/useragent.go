package httpx

import (
	"net/http"
	"strings"

	"github.com/uninbox/authd/internal/service"
)

type uaRule struct {
	token string
	name  string
}

// Order matters: Edge and Opera also advertise Chrome, and Chrome advertises Safari.
var browserRules = []uaRule{
	{"Edg/", "Edge"},
	{"OPR/", "Opera"},
	{"Firefox/", "Firefox"},
	{"Chrome/", "Chrome"},
	{"CriOS/", "Chrome"},
	{"Safari/", "Safari"},
}

var osRules = []uaRule{
	{"Android", "Android"},
	{"iPhone", "iOS"},
	{"iPad", "iPadOS"},
	{"Windows", "Windows"},
	{"Mac OS X", "macOS"},
	{"CrOS", "ChromeOS"},
	{"Linux", "Linux"},
}

func matchUA(ua string, rules []uaRule) string {
	for _, r := range rules {
		if strings.Contains(ua, r.token) {
			return r.name
		}
	}
	return "Unknown"
}

// deviceFromRequest labels the client for the session list.
func deviceFromRequest(r *http.Request) service.Device {
	ua := r.UserAgent()
	if ua == "" {
		return service.Device{Device: "Unknown", OS: "Unknown"}
	}
	return service.Device{Device: matchUA(ua, browserRules), OS: matchUA(ua, osRules)}
}
