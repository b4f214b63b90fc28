package webhook

import (
	"encoding/json"
	"strings"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

// Event is the identity-provider lifecycle event delivered to the webhook.
// Only the fields the bridge inspects are typed; the rest ride along.
type Event struct {
	Type           string                     `json:"type"`
	RealmID        string                     `json:"realmId"`
	ID             string                     `json:"id,omitempty"`
	Time           float64                    `json:"time,omitempty"`
	ClientID       string                     `json:"clientId,omitempty"`
	UserID         string                     `json:"userId,omitempty"`
	IPAddress      string                     `json:"ipAddress,omitempty"`
	Error          string                     `json:"error,omitempty"`
	Details        map[string]json.RawMessage `json:"details,omitempty"`
	ResourcePath   string                     `json:"resourcePath,omitempty"`
	Representation string                     `json:"representation,omitempty"`
}

// UserRepresentation is the user payload embedded as a JSON string in
// user-update events
type UserRepresentation struct {
	ID       string `json:"id"`
	Enabled  bool   `json:"enabled"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ParseRepresentation decodes the embedded user representation
func (e *Event) ParseRepresentation() (*UserRepresentation, error) {
	if e.Representation == "" {
		return nil, apperrors.New(apperrors.CodeSerialization, "event missing representation")
	}
	var rep UserRepresentation
	if err := json.Unmarshal([]byte(e.Representation), &rep); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSerialization, "failed to parse representation", err)
	}
	return &rep, nil
}

// Action is what the bridge does with a classified event
type Action int

const (
	// ActionIgnore acknowledges the event without any effect
	ActionIgnore Action = iota
	// ActionRevoke forwards a revocation for the event's subject
	ActionRevoke
	// ActionEnabled cancels pending revocations for the event's subject
	ActionEnabled
)

// Classify decides the action for an incoming event. Deletes revoke when the
// resource path is absent or names a user; updates revoke only on a parsed
// enabled=false representation under a user path, and cancel on enabled=true.
func Classify(e *Event) Action {
	switch strings.ToLower(e.Type) {
	case "user-delete":
		if e.ResourcePath == "" || strings.Contains(e.ResourcePath, "users/") {
			return ActionRevoke
		}
	case "user-update":
		rep, err := e.ParseRepresentation()
		if err != nil {
			return ActionIgnore
		}
		if rep.Enabled {
			return ActionEnabled
		}
		if strings.Contains(e.ResourcePath, "users/") {
			return ActionRevoke
		}
	}
	return ActionIgnore
}

// ExtractSubject finds the subject id of an event: the representation's id
// when present, else the path segment following "users/" in resourcePath
func ExtractSubject(e *Event) string {
	if rep, err := e.ParseRepresentation(); err == nil && rep.ID != "" {
		return rep.ID
	}
	if idx := strings.Index(e.ResourcePath, "users/"); idx >= 0 {
		rest := e.ResourcePath[idx+len("users/"):]
		if end := strings.IndexByte(rest, '/'); end >= 0 {
			rest = rest[:end]
		}
		return rest
	}
	return ""
}
