package errreport

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ClientReport is an error reported by the browser.
type ClientReport struct {
	Message   string `json:"message"`
	Stack     string `json:"stack"`
	URL       string `json:"url"`
	Component string `json:"component"`
}

const maxStackLen = 8 << 10

// Handler accepts client-side error reports on POST /api/errors.
func Handler(r Reporter) echo.HandlerFunc {
	return func(c echo.Context) error {
		var rep ClientReport
		if err := c.Bind(&rep); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		rep.Message = strings.TrimSpace(rep.Message)
		if rep.Message == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "message is required")
		}
		if len(rep.Stack) > maxStackLen {
			rep.Stack = rep.Stack[:maxStackLen]
		}

		tags := map[string]string{"source": "client"}
		if rep.Component != "" {
			tags["component"] = rep.Component
		}
		if rep.URL != "" {
			tags["url"] = rep.URL
		}
		if tid, ok := c.Get("tenant_id").(string); ok && tid != "" {
			tags["tenant_id"] = tid
		}
		msg := rep.Message
		if rep.Stack != "" {
			msg += "\n" + rep.Stack
		}
		r.CaptureMessage(c.Request().Context(), msg, tags)

		return c.JSON(http.StatusAccepted, map[string]interface{}{"success": true})
	}
}
