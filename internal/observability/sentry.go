package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports an unexpected error. Expected auth failures are
// never sent here.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// scrubEvent drops request bodies, cookies and auth headers so credentials
// and tokens never leave the process.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}

	event.Request.Data = ""
	event.Request.Cookies = ""
	for key := range event.Request.Headers {
		if isSensitive(key) {
			event.Request.Headers[key] = redacted
		}
	}

	return event
}
