package authz

import (
	"context"
	"net/http"
)

type contextKey string

const (
	subjectKey      contextKey = "subject"
	capabilitiesKey contextKey = "capabilities"
)

// ManageStore is the capability every batch action requires.
const ManageStore = "manage_store"

// WithIdentity stores the caller and its capabilities on the context.
func WithIdentity(ctx context.Context, subject string, capabilities []string) context.Context {
	if subject != "" {
		ctx = context.WithValue(ctx, subjectKey, subject)
	}
	return context.WithValue(ctx, capabilitiesKey, append([]string(nil), capabilities...))
}

func SubjectFromRequest(r *http.Request) (string, bool) {
	sub, ok := r.Context().Value(subjectKey).(string)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}

func CapabilitiesFromRequest(r *http.Request) ([]string, bool) {
	caps, ok := r.Context().Value(capabilitiesKey).([]string)
	return caps, ok
}

// HasCapability reports whether the request carries capability.
func HasCapability(r *http.Request, capability string) bool {
	caps, _ := CapabilitiesFromRequest(r)
	for _, c := range caps {
		if c == capability {
			return true
		}
	}
	return false
}
