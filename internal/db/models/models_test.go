package models

import "testing"

func TestIsEntityID(t *testing.T) {
	valid := []string{
		"3f0c9a2e-8b1d-4c6e-9f2a-1b2c3d4e5f60",
		"65f1c0ffee0000000000abcd",
		"65F1C0FFEE0000000000ABCD",
		"42",
	}
	for _, s := range valid {
		if !IsEntityID(s) {
			t.Errorf("IsEntityID(%q) = false, want true", s)
		}
	}
	invalid := []string{"", "projects", "p-3", "65f1c0ffee0000000000abc", "-1", "123456789012345678901", "3f0c9a2e8b1d4c6e9f2a1b2c3d4e5f60zz"}
	for _, s := range invalid {
		if IsEntityID(s) {
			t.Errorf("IsEntityID(%q) = true, want false", s)
		}
	}
}

// ---------------------------------------------------------------------------
// AuditAction / AuditStatus
// ---------------------------------------------------------------------------

func TestAuditAction_Valid(t *testing.T) {
	for _, a := range AuditActions {
		if !a.Valid() {
			t.Errorf("%q.Valid() = false, want true", a)
		}
	}
	for _, a := range []AuditAction{"", "create", "READ"} {
		if a.Valid() {
			t.Errorf("%q.Valid() = true, want false", a)
		}
	}
}

func TestAuditStatus_Valid(t *testing.T) {
	for _, s := range AuditStatuses {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if AuditStatus("PENDING").Valid() {
		t.Error(`"PENDING".Valid() = true, want false`)
	}
}

// ---------------------------------------------------------------------------
// NewAuditLogPage
// ---------------------------------------------------------------------------

func TestNewAuditLogPage(t *testing.T) {
	tests := []struct {
		name               string
		total, page, limit int
		wantPages          int
		wantPrev, wantNext bool
		wantCounter        int
	}{
		{"37 docs by 15, first page", 37, 1, 15, 3, false, true, 1},
		{"37 docs by 15, last page", 37, 3, 15, 3, true, false, 31},
		{"37 docs by 15, past the end", 37, 4, 15, 3, true, false, 46},
		{"no docs", 0, 1, 20, 1, false, false, 1},
		{"exact multiple", 40, 2, 20, 2, true, false, 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewAuditLogPage(nil, tt.total, tt.page, tt.limit)
			if p.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", p.TotalPages, tt.wantPages)
			}
			if p.HasPrevPage != tt.wantPrev || p.HasNextPage != tt.wantNext {
				t.Errorf("HasPrev/HasNext = %v/%v, want %v/%v", p.HasPrevPage, p.HasNextPage, tt.wantPrev, tt.wantNext)
			}
			if p.PagingCounter != tt.wantCounter {
				t.Errorf("PagingCounter = %d, want %d", p.PagingCounter, tt.wantCounter)
			}
			if p.Docs == nil || len(p.Docs) != 0 {
				t.Errorf("Docs = %v, want empty non-nil slice", p.Docs)
			}
			if tt.wantNext && (p.NextPage == nil || *p.NextPage != tt.page+1) {
				t.Errorf("NextPage = %v, want %d", p.NextPage, tt.page+1)
			}
			if !tt.wantPrev && p.PrevPage != nil {
				t.Errorf("PrevPage = %d, want nil", *p.PrevPage)
			}
		})
	}
}
