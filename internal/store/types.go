package store

import "time"

// File is a scanned page image. Artifact paths and the fully_processed
// flag are mutated after creation; rows are never deleted outside an
// explicit purge.
type File struct {
	ID               int64
	Path             string
	OriginalFilename string
	ContentHash      string
	Width            int64
	Height           int64
	Format           string
	CapturedAt       *time.Time
	OCRTextPath      *string
	OCRJSONPath      *string
	FullyProcessed   bool
}

// Note is a logical document owning zero or more files through note_file.
type Note struct {
	ID                   int64
	Title                string
	Author               string
	Notebook             string
	Status               string
	Content              string
	DateCreated          *string
	DateCreatedPrecision *string
	Metadata             string
	PrevNoteID           *int64
	NextNoteID           *int64
}

// PageLink is one note_file membership row. PageOrder is the authoritative
// ordering key; Prev/Next form the derived chain over sibling pages.
type PageLink struct {
	NoteID     int64
	FileID     int64
	PageOrder  int64
	PrevFileID *int64
	NextFileID *int64
}

// TranscribedPage is the page-level transcription with its own chain.
type TranscribedPage struct {
	ID                    int64
	NoteID                int64
	FileID                *int64
	PageOrder             int64
	Text                  string
	JSONPath              *string
	InferredDate          *string
	InferredDatePrecision *string
	PrevID                *int64
	NextID                *int64
}

// Passage is an inclusive verse range into the external scripture store.
// Both endpoints are weak references; only the passage validator certifies
// them.
type Passage struct {
	ID           int64
	StartVerseID int64
	EndVerseID   int64
	Citation     *string
}

// Note statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Note↔passage relation types.
const (
	RelMentions = "mentions"
	RelQuotes   = "quotes"
	RelComments = "comments"
	RelAlludes  = "alludes"
)
