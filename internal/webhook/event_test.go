package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	disabledRep := `{"enabled":false,"username":"u","email":"e"}`
	enabledRep := `{"enabled":true,"username":"u","email":"e"}`

	cases := []struct {
		name  string
		event Event
		want  Action
	}{
		{
			name:  "user delete without resource path revokes",
			event: Event{Type: "USER-DELETE"},
			want:  ActionRevoke,
		},
		{
			name:  "user delete on users path revokes",
			event: Event{Type: "user-delete", ResourcePath: "users/uid-42"},
			want:  ActionRevoke,
		},
		{
			name:  "user delete on other resource is ignored",
			event: Event{Type: "USER-DELETE", ResourcePath: "groups/g-1"},
			want:  ActionIgnore,
		},
		{
			name:  "user update disabled on users path revokes",
			event: Event{Type: "USER-UPDATE", ResourcePath: "users/uid-42", Representation: disabledRep},
			want:  ActionRevoke,
		},
		{
			name:  "user update enabled cancels pending",
			event: Event{Type: "USER-UPDATE", ResourcePath: "users/uid-42", Representation: enabledRep},
			want:  ActionEnabled,
		},
		{
			name:  "user update without representation is ignored",
			event: Event{Type: "user-update", ResourcePath: "users/uid-42"},
			want:  ActionIgnore,
		},
		{
			name:  "user update disabled outside users path is ignored",
			event: Event{Type: "user-update", ResourcePath: "clients/c-1", Representation: disabledRep},
			want:  ActionIgnore,
		},
		{
			name:  "unrelated event type is ignored",
			event: Event{Type: "LOGIN"},
			want:  ActionIgnore,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(&tc.event))
		})
	}
}

func TestExtractSubject(t *testing.T) {
	cases := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "representation id wins",
			event: Event{Representation: `{"id":"rep-1","enabled":false}`, ResourcePath: "users/uid-42"},
			want:  "rep-1",
		},
		{
			name:  "resource path segment",
			event: Event{ResourcePath: "users/uid-42"},
			want:  "uid-42",
		},
		{
			name:  "resource path with trailing segments",
			event: Event{ResourcePath: "admin/realms/acme/users/uid-42/groups"},
			want:  "uid-42",
		},
		{
			name:  "no subject anywhere",
			event: Event{ResourcePath: "groups/g-1"},
			want:  "",
		},
		{
			name:  "empty event",
			event: Event{},
			want:  "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractSubject(&tc.event))
		})
	}
}
