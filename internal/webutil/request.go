package webutil

import (
	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"

	"github.com/tech-arch1tect/authkit/services/refreshtoken"
)

// DescribeDevice condenses a User-Agent header into a short label suitable
// for storing next to a refresh token, e.g. "Firefox 128.0 (Desktop)".
func DescribeDevice(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgentString)

	deviceType := "Desktop"
	if ua.Mobile {
		deviceType = "Mobile"
	} else if ua.Tablet {
		deviceType = "Tablet"
	} else if ua.Bot {
		deviceType = "Bot"
	}

	browser := "Unknown Browser"
	if ua.Name != "" {
		if ua.Version != "" {
			browser = ua.Name + " " + ua.Version
		} else {
			browser = ua.Name
		}
	}

	return browser + " (" + deviceType + ")"
}

// SessionMeta extracts the device label and client IP from the request.
// Echo's RealIP already honours X-Forwarded-For and X-Real-IP.
func SessionMeta(c echo.Context) refreshtoken.SessionMeta {
	return refreshtoken.SessionMeta{
		DeviceInfo: DescribeDevice(c.Request().UserAgent()),
		IPAddress:  c.RealIP(),
	}
}
