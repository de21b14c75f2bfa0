package model

import "time"

// Status is the lifecycle state of a Request. Closed is terminal.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

// Request is a single mutual-aid ask.
//
// Responses are owned by the Request: they are stored in their own table but
// are only ever read, written and deleted through their parent.
type Request struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Tags        []string      `json:"tags"`
	AuthorID    string        `json:"authorId"`
	Author      *UserSummary  `json:"author,omitempty"`
	Location    RequestPlace  `json:"location"`
	Status      Status        `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	EditedAt    *time.Time    `json:"editedAt,omitempty"`
	Resolution  *Resolution   `json:"resolution,omitempty"`
	Responses   []Response    `json:"responses"`
	Mentions    []UserSummary `json:"mentionUsers,omitempty"`

	// DescriptionSegments is Description split into plain text and resolved
	// @username mentions.
	DescriptionSegments []Segment `json:"descriptionSegments,omitempty"`
}

// Segment is a run of free text. UserID is set when the run is an
// @username mention of a known user.
type Segment struct {
	Text   string `json:"text"`
	UserID string `json:"userId,omitempty"`
}

// RequestPlace is the optional request-specific location. Its state must
// equal the owner's state when the request is created.
type RequestPlace struct {
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

// IsZero reports whether no location was given.
func (p RequestPlace) IsZero() bool {
	return p.City == "" && p.State == ""
}

// Resolution records how a closed request was resolved. ResolvedBy is empty
// when the request was solved outside the platform.
type Resolution struct {
	ResolvedBy            string       `json:"resolvedBy,omitempty"`
	Resolver              *UserSummary `json:"resolver,omitempty"`
	ResolvedAt            time.Time    `json:"resolvedAt"`
	SolvedOutsidePlatform bool         `json:"solvedOutsidePlatform"`
}

// Response is a reply to a Request. Its ID is only meaningful together with
// the parent request ID.
type Response struct {
	ID        string       `json:"id"`
	RequestID string       `json:"requestId"`
	UserID    string       `json:"userId"`
	User      *UserSummary `json:"user,omitempty"`
	Message   string       `json:"message"`
	Segments  []Segment    `json:"segments,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	EditedAt  *time.Time   `json:"editedAt,omitempty"`
}

// IsOpen reports whether the request still accepts responses.
func (r *Request) IsOpen() bool {
	return r.Status == StatusOpen
}

// HasResponder reports whether userID authored at least one response.
func (r *Request) HasResponder(userID string) bool {
	for _, resp := range r.Responses {
		if resp.UserID == userID {
			return true
		}
	}
	return false
}

// FindResponse returns the response with the given id, or nil.
func (r *Request) FindResponse(id string) *Response {
	for i := range r.Responses {
		if r.Responses[i].ID == id {
			return &r.Responses[i]
		}
	}
	return nil
}

// RequestSummary is a search result row: the request without its response
// thread, plus the number of responses used for ranking.
type RequestSummary struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Tags          []string     `json:"tags"`
	AuthorID      string       `json:"authorId"`
	Author        *UserSummary `json:"author,omitempty"`
	Location      RequestPlace `json:"location"`
	Status        Status       `json:"status"`
	ResponseCount int          `json:"responseCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	EditedAt      *time.Time   `json:"editedAt,omitempty"`
}
