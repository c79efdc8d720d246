package models

// AuditLogPage is a page of audit records with the metadata clients use to
// render pagination controls.
type AuditLogPage struct {
	Docs          []*AuditLog `json:"docs"`
	TotalDocs     int         `json:"totalDocs"`
	Limit         int         `json:"limit"`
	Page          int         `json:"page"`
	TotalPages    int         `json:"totalPages"`
	PagingCounter int         `json:"pagingCounter"`
	HasPrevPage   bool        `json:"hasPrevPage"`
	HasNextPage   bool        `json:"hasNextPage"`
	PrevPage      *int        `json:"prevPage"`
	NextPage      *int        `json:"nextPage"`
}

// NewAuditLogPage computes page metadata. A page past the end is valid and
// simply carries no docs.
func NewAuditLogPage(docs []*AuditLog, totalDocs, page, limit int) *AuditLogPage {
	if docs == nil {
		docs = []*AuditLog{}
	}
	if page < 1 {
		page = 1
	}
	totalPages := 1
	if limit > 0 && totalDocs > 0 {
		totalPages = (totalDocs + limit - 1) / limit
	}

	p := &AuditLogPage{
		Docs:          docs,
		TotalDocs:     totalDocs,
		Limit:         limit,
		Page:          page,
		TotalPages:    totalPages,
		PagingCounter: (page-1)*limit + 1,
		HasPrevPage:   page > 1,
		HasNextPage:   page < totalPages,
	}
	if p.HasPrevPage {
		prev := page - 1
		p.PrevPage = &prev
	}
	if p.HasNextPage {
		next := page + 1
		p.NextPage = &next
	}
	return p
}
