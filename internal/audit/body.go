package audit

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// object decodes b as a JSON object. Anything else (empty, array, invalid) yields nil.
func object(b []byte) map[string]interface{} {
	if len(b) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil || dec.More() {
		return nil
	}
	return m
}

// scalarString renders string and number identifiers; other types are ignored.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", false
		}
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		// Integers keep their exact digits; 1e21 or 7.0 are rendered in plain decimal.
		if _, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			return t.String(), true
		}
		if strings.ContainsAny(t.String(), ".eE") {
			f, err := t.Float64()
			if err != nil {
				return "", false
			}
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return t.String(), true
	}
	return "", false
}

// CleanText makes captured response bytes safe to store as text: invalid
// UTF-8 sequences (compressed or binary payloads) are dropped along with NUL
// bytes, which PostgreSQL TEXT columns reject.
func CleanText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	return strings.ReplaceAll(s, "\x00", "")
}

// ResourceIDFromBody returns the "_id" field of a JSON object body, falling
// back to "id", and also looks one level into a "data" envelope.
func ResourceIDFromBody(b []byte) *string {
	m := object(b)
	if m == nil {
		return nil
	}
	if id := idField(m); id != nil {
		return id
	}
	if data, ok := m["data"].(map[string]interface{}); ok {
		return idField(data)
	}
	return nil
}

func idField(m map[string]interface{}) *string {
	for _, key := range []string{"_id", "id"} {
		if s, ok := scalarString(m[key]); ok {
			return &s
		}
	}
	return nil
}

// BodyIdentity is the user a login response reports.
type BodyIdentity struct {
	UserID string
	Email  string
	Name   string
}

// IdentityFromBody reads the "user" object of a login or logout response,
// either at the top level or inside a "data" envelope.
func IdentityFromBody(b []byte) *BodyIdentity {
	m := object(b)
	if m == nil {
		return nil
	}
	user, ok := m["user"].(map[string]interface{})
	if !ok {
		data, _ := m["data"].(map[string]interface{})
		if user, ok = data["user"].(map[string]interface{}); !ok {
			return nil
		}
	}

	id := &BodyIdentity{}
	if s := idField(user); s != nil {
		id.UserID = *s
	}
	id.Email, _ = user["email"].(string)
	id.Name, _ = user["name"].(string)
	if id.Name == "" {
		first, _ := user["firstName"].(string)
		last, _ := user["lastName"].(string)
		id.Name = strings.TrimSpace(first + " " + last)
	}
	if id.UserID == "" && id.Email == "" {
		return nil
	}
	return id
}
