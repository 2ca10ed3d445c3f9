package audit

import (
	"context"
	"time"
)

const (
	// MaxPageSize caps the audit query page size.
	MaxPageSize     = 100
	DefaultPageSize = 20
)

// Filter narrows an audit query. Zero values mean "no constraint".
type Filter struct {
	ActorEmail string // substring match
	ActorName  string // substring match
	Action     ActionType
	Resource   ResourceType
	Status     Status
	From       time.Time
	To         time.Time
	Search     string // free text over the description

	Page int // 1-based
	Size int
}

// Normalize clamps pagination to a valid 1-based page and a size within
// [1, MaxPageSize].
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size < 1 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	return f
}

// Page is the envelope returned by audit queries.
type Page struct {
	Content          []*Record `json:"content"`
	PageNumber       int       `json:"page"`
	Size             int       `json:"size"`
	TotalElements    int       `json:"totalElements"`
	TotalPages       int       `json:"totalPages"`
	IsFirstPage      bool      `json:"isFirstPage"`
	IsLastPage       bool      `json:"isLastPage"`
	HasNext          bool      `json:"hasNext"`
	HasPrevious      bool      `json:"hasPrevious"`
	NumberOfElements int       `json:"numberOfElements"`
}

// NewPage builds the envelope for one page of content.
func NewPage(content []*Record, f Filter, total int) *Page {
	if content == nil {
		content = []*Record{}
	}

	totalPages := total / f.Size
	if total%f.Size != 0 {
		totalPages++
	}
	if totalPages == 0 {
		totalPages = 1
	}

	return &Page{
		Content:          content,
		PageNumber:       f.Page,
		Size:             f.Size,
		TotalElements:    total,
		TotalPages:       totalPages,
		IsFirstPage:      f.Page == 1,
		IsLastPage:       f.Page >= totalPages,
		HasNext:          f.Page < totalPages,
		HasPrevious:      f.Page > 1,
		NumberOfElements: len(content),
	}
}

// Store persists and queries audit records. Save must run in its own unit of
// work, independent of any business transaction.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Query(ctx context.Context, f Filter) (*Page, error)
}
