package domain

import "time"

// Comment is a discussion entry on a ticket.
//
// Internal comments are written and read by staff roles only; requesters
// never see them.
type Comment struct {
	ID          string
	TicketID    string
	AuthorID    string
	Body        string
	Internal    bool
	Attachments []CommentAttachment
	CreatedAt   time.Time
}

// CommentAttachment stores metadata for a file referenced by a comment.
// The bytes themselves live in external storage under StorageKey.
type CommentAttachment struct {
	ID         string
	CommentID  string
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
	CreatedAt  time.Time
}
