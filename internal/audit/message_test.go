package audit

import (
	"strings"
	"testing"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name string
		in   MessageInput
		want string
	}{
		{
			name: "failure uses failed template",
			in:   MessageInput{Action: models.ActionDelete, Resource: "projects", UserEmail: "a@x.io", Status: models.StatusFailure, Body: []byte(`{"message":"Forbidden"}`)},
			want: "Failed to delete Projects by a@x.io",
		},
		{
			name: "error status uses failed template",
			in:   MessageInput{Action: models.ActionUpdate, Resource: "users", UserEmail: "a@x.io", UserName: "Ann", Status: models.StatusError},
			want: "Failed to update Users by Ann (a@x.io)",
		},
		{
			name: "body message wins",
			in:   MessageInput{Action: models.ActionCreate, Resource: "projects", UserEmail: "a@x.io", Status: models.StatusSuccess, Body: []byte(`{"success":true,"message":"Project saved"}`)},
			want: "Project saved",
		},
		{
			name: "success flag gives canned phrase",
			in:   MessageInput{Action: models.ActionCreate, Resource: "projects", UserEmail: "a@x.io", UserName: "Ann", Status: models.StatusSuccess, Body: []byte(`{"success":true}`)},
			want: "Projects created successfully by Ann (a@x.io)",
		},
		{
			name: "update canned",
			in:   MessageInput{Action: models.ActionUpdate, Resource: "timesheets", UserEmail: "a@x.io", Status: models.StatusSuccess, Body: []byte(`{"success":true,"data":{}}`)},
			want: "Timesheets updated successfully by a@x.io",
		},
		{
			name: "generic fallback without success flag",
			in:   MessageInput{Action: models.ActionDelete, Resource: "assignments", UserEmail: "a@x.io", Status: models.StatusSuccess, Body: []byte(`{"deleted":1}`)},
			want: "Assignments deleted by a@x.io",
		},
		{
			name: "unparseable body falls back",
			in:   MessageInput{Action: models.ActionCreate, Resource: "projects", UserEmail: "a@x.io", Status: models.StatusSuccess, Body: []byte(`<html>`)},
			want: "Projects created by a@x.io",
		},
		{
			name: "login success",
			in:   MessageInput{Action: models.ActionLogin, Resource: "auth", UserEmail: "a@x.io", UserName: "Ann", Status: models.StatusSuccess, Body: []byte(`{"success":true,"user":{}}`)},
			want: "User Ann (a@x.io) logged in successfully",
		},
		{
			name: "logout generic",
			in:   MessageInput{Action: models.ActionLogout, Resource: "auth", UserEmail: "a@x.io", Status: models.StatusSuccess},
			want: "User a@x.io logged out",
		},
		{
			name: "unknown action",
			in:   MessageInput{Action: models.ActionUnknown, Resource: "reports", UserEmail: "anonymous", Status: models.StatusSuccess},
			want: "Reports action performed by anonymous",
		},
		{
			name: "empty resource",
			in:   MessageInput{Action: models.ActionCreate, UserEmail: "a@x.io", Status: models.StatusSuccess},
			want: "Unknown created by a@x.io",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Synthesize(tt.in); got != tt.want {
				t.Errorf("Synthesize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	in := MessageInput{Action: models.ActionCreate, Resource: "projects", UserEmail: "a@x.io", Status: models.StatusSuccess, Body: []byte(`{"success":true}`)}
	first := Synthesize(in)
	for i := 0; i < 10; i++ {
		if got := Synthesize(in); got != first {
			t.Fatalf("Synthesize() changed between calls: %q vs %q", first, got)
		}
	}
	if !strings.HasPrefix(first, "Projects created") {
		t.Errorf("unexpected message %q", first)
	}
}
