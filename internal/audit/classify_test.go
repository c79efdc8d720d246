package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/timesheet-app/timesheet/internal/db/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		method, path string
		want         models.AuditAction
		ok           bool
	}{
		{"POST", "/api/projects", models.ActionCreate, true},
		{"PUT", "/api/projects/1", models.ActionUpdate, true},
		{"PATCH", "/api/projects/1", models.ActionUpdate, true},
		{"DELETE", "/api/projects/1", models.ActionDelete, true},
		{"delete", "/api/projects/1", models.ActionDelete, true},
		{"GET", "/api/projects", "", false},
		{"HEAD", "/api/projects", "", false},
		{"OPTIONS", "/api/projects", "", false},
		{"POST", "/api/auth/login", models.ActionLogin, true},
		{"POST", "/api/auth/logout", models.ActionLogout, true},
		{"POST", "/api/auth/login?next=/", models.ActionLogin, true},
		{"POST", "/api/auth/login/", models.ActionLogin, true},
		{"DELETE", "/api/sessions/logout", models.ActionDelete, true},
		{"POST", "/api/users/loginhistory", models.ActionCreate, true},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.method, tt.path)
		assert.Equal(t, tt.ok, ok, "%s %s", tt.method, tt.path)
		assert.Equal(t, tt.want, got, "%s %s", tt.method, tt.path)
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := map[string]string{
		"/api/projects/123":          "projects",
		"/timesheets/abc":            "timesheets",
		"/":                          "unknown",
		"":                           "unknown",
		"/api":                       "unknown",
		"/api/Users":                 "users",
		"/api/v1/projects/9":         "projects",
		"/api/v1":                    "unknown",
		"/api/projects?sort=name":    "projects",
		"//api//assignments//4":      "assignments",
		"/admin/api/custom-fields/1": "custom-fields",
	}
	for path, want := range tests {
		assert.Equal(t, want, ResourceFromPath(path), "path %q", path)
	}
}

func TestResourceIDFromPath(t *testing.T) {
	tests := map[string]string{
		"/api/projects/65f1c0ffee0000000000abcd":             "65f1c0ffee0000000000abcd",
		"/api/v2/users/3f0c9a2e-8b1d-4c6e-9f2a-1b2c3d4e5f60": "3f0c9a2e-8b1d-4c6e-9f2a-1b2c3d4e5f60",
		"/api/timesheets/1234/approve":                       "1234",
		"/timesheets/77":                                     "77",
		"/api/projects/65f1c0ffee0000000000abcd?x=1":         "65f1c0ffee0000000000abcd",
		"/api/projects":                                      "",
		"/api/projects/archive":                              "",
		"/api/auth/login":                                    "",
		"/api":                                               "",
		"":                                                   "",
	}
	for path, want := range tests {
		got := ResourceIDFromPath(path)
		if want == "" {
			assert.Nil(t, got, "path %q", path)
			continue
		}
		if assert.NotNil(t, got, "path %q", path) {
			assert.Equal(t, want, *got, "path %q", path)
		}
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, `{"message":"nope"}`, CleanText([]byte(`{"message":"nope"}`)))
	assert.Equal(t, "héllo", CleanText([]byte("héllo")))
	// stray continuation bytes, a NUL and an invalid lead byte
	assert.Equal(t, "ok", CleanText([]byte{0x8b, 0x00, 'o', 0x80, 'k', 0xff}))
	assert.Equal(t, "", CleanText(nil))
}

func TestResourceIDFromBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"underscore id preferred", `{"_id":"a1","id":"b2"}`, "a1"},
		{"plain id", `{"id":"b2"}`, "b2"},
		{"numeric id", `{"id":42}`, "42"},
		{"large numeric id keeps its digits", `{"id":1000000000000000000000}`, "1000000000000000000000"},
		{"exponent id rendered in decimal", `{"id":1e21}`, "1000000000000000000000"},
		{"int64 beyond float precision", `{"id":9007199254740993}`, "9007199254740993"},
		{"data envelope", `{"success":true,"data":{"_id":"c3"}}`, "c3"},
		{"empty id ignored", `{"_id":"","id":"d4"}`, "d4"},
		{"none", `{"name":"x"}`, ""},
		{"array", `[{"id":"x"}]`, ""},
		{"not json", `hello`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResourceIDFromBody([]byte(tt.body))
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			if assert.NotNil(t, got) {
				assert.Equal(t, tt.want, *got)
			}
		})
	}
}

func TestIdentityFromBody(t *testing.T) {
	id := IdentityFromBody([]byte(`{"token":"t","user":{"_id":"u1","email":"ada@example.com","name":"Ada"}}`))
	if assert.NotNil(t, id) {
		assert.Equal(t, BodyIdentity{UserID: "u1", Email: "ada@example.com", Name: "Ada"}, *id)
	}

	id = IdentityFromBody([]byte(`{"data":{"user":{"id":"u2","email":"b@example.com","firstName":"Bo","lastName":"Li"}}}`))
	if assert.NotNil(t, id) {
		assert.Equal(t, "u2", id.UserID)
		assert.Equal(t, "Bo Li", id.Name)
	}

	assert.Nil(t, IdentityFromBody([]byte(`{"user":"nope"}`)))
	assert.Nil(t, IdentityFromBody([]byte(`{"user":{}}`)))
	assert.Nil(t, IdentityFromBody(nil))
}
