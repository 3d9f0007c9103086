package audit

import (
	"context"
	"strings"

	"github.com/mssola/useragent"

	"certify/pkg/requestcontext"
)

// FromContext builds an event for action, stamping the category and the
// request-scoped metadata (request id, client ip, user agent, request time).
func FromContext(ctx context.Context, action AuditEvent, subject string) Event {
	return Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		Action:    string(action),
		Subject:   subject,
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: DescribeUserAgent(requestcontext.UserAgent(ctx)),
	}
}

// DescribeUserAgent condenses a raw User-Agent header to "browser version (os)",
// or "bot:<name>" for crawlers. Unparseable values are returned truncated.
func DescribeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if ua.Bot() {
		return "bot:" + name
	}
	if name == "" {
		if len(raw) > 64 {
			return raw[:64]
		}
		return raw
	}
	desc := name
	if version != "" {
		desc += " " + version
	}
	if osName := ua.OS(); osName != "" {
		desc += " (" + osName + ")"
	}
	if ua.Mobile() {
		desc += " mobile"
	}
	return desc
}
