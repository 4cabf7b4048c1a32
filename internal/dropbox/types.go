package dropbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// EntryKind is the variant of a metadata entry.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryFile
	EntryFolder
	EntryDeleted
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryFolder:
		return "folder"
	case EntryDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Entry is a file, folder or deleted-item record, normalized from the
// tagged metadata union. Callers never see raw API data.
type Entry struct {
	Kind           EntryKind
	ID             string
	Name           string
	PathLower      string
	PathDisplay    string
	Rev            string // files only
	Size           int64  // files only
	ContentHash    string // files only
	ClientModified time.Time
	ServerModified time.Time
}

func (e *Entry) IsFolder() bool { return e.Kind == EntryFolder }
func (e *Entry) IsFile() bool   { return e.Kind == EntryFile }

// metadataResponse mirrors the API's Metadata union after normalization.
type metadataResponse struct {
	Tag            string `json:"tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathLower      string `json:"path_lower"`
	PathDisplay    string `json:"path_display"`
	Rev            string `json:"rev"`
	Size           int64  `json:"size"`
	ContentHash    string `json:"content_hash"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
}

// toEntry normalizes a metadata response. Untagged payloads (upload and
// create-folder replies) are classified by fallback.
func (m *metadataResponse) toEntry(fallback EntryKind, logger *slog.Logger) Entry {
	e := Entry{
		Kind:        kindFromTag(m.Tag, fallback),
		ID:          m.ID,
		Name:        m.Name,
		PathLower:   m.PathLower,
		PathDisplay: m.PathDisplay,
		Rev:         m.Rev,
		Size:        m.Size,
		ContentHash: m.ContentHash,
	}

	e.ClientModified = parseTimestamp(m.ClientModified, "client_modified", m.PathDisplay, logger)
	e.ServerModified = parseTimestamp(m.ServerModified, "server_modified", m.PathDisplay, logger)

	return e
}

func kindFromTag(tag string, fallback EntryKind) EntryKind {
	switch tag {
	case "file":
		return EntryFile
	case "folder":
		return EntryFolder
	case "deleted":
		return EntryDeleted
	default:
		return fallback
	}
}

// parseTimestamp parses an RFC3339 timestamp. Absent values stay zero;
// malformed ones are logged and left zero.
func parseTimestamp(raw, field, path string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp, leaving unset",
			slog.String("field", field),
			slog.String("path", path),
			slog.String("raw", raw),
		)

		return time.Time{}
	}

	return t
}

// WriteMode selects what happens when the target path already exists.
type WriteMode struct {
	mode string
	rev  string
}

var (
	// WriteModeAdd keeps the existing file; the upload fails (or is
	// renamed with autorename) on conflict.
	WriteModeAdd = WriteMode{mode: "add"}
	// WriteModeOverwrite replaces whatever is at the path.
	WriteModeOverwrite = WriteMode{mode: "overwrite"}
)

// WriteModeUpdate overwrites only if the current revision is rev.
func WriteModeUpdate(rev string) WriteMode {
	return WriteMode{mode: "update", rev: rev}
}

func (m WriteMode) String() string {
	if m.mode == "" {
		return WriteModeAdd.mode
	}

	return m.mode
}

// MarshalJSON encodes add/overwrite as bare strings and update as the
// tagged value {".tag": "update", "update": rev}.
func (m WriteMode) MarshalJSON() ([]byte, error) {
	if m.mode == "update" {
		if m.rev == "" {
			return nil, fmt.Errorf("dropbox: update write mode requires a revision")
		}

		return json.Marshal(map[string]string{discriminatorKey: "update", "update": m.rev})
	}

	return json.Marshal(m.String())
}

// CommitInfo is where and how an uploaded file is committed.
type CommitInfo struct {
	Path       string    `json:"path"`
	Mode       WriteMode `json:"mode"`
	AutoRename bool      `json:"autorename"`
	Mute       bool      `json:"mute"`
}

// SearchMode selects what files/search matches against.
type SearchMode string

const (
	SearchFilename           SearchMode = "filename"
	SearchFilenameAndContent SearchMode = "filename_and_content"
	SearchDeletedFilename    SearchMode = "deleted_filename"
)

// ThumbnailFormat is the image encoding of a thumbnail.
type ThumbnailFormat string

const (
	ThumbnailJPEG ThumbnailFormat = "jpeg"
	ThumbnailPNG  ThumbnailFormat = "png"
)

// ThumbnailSize is the bounding box of a thumbnail.
type ThumbnailSize string

const (
	ThumbnailW32H32     ThumbnailSize = "w32h32"
	ThumbnailW64H64     ThumbnailSize = "w64h64"
	ThumbnailW128H128   ThumbnailSize = "w128h128"
	ThumbnailW640H480   ThumbnailSize = "w640h480"
	ThumbnailW1024H768  ThumbnailSize = "w1024h768"
	defaultThumbnailDim               = ThumbnailW64H64
)

// ListFolderResult is one page of a folder listing.
type ListFolderResult struct {
	Entries []Entry
	Cursor  string
	HasMore bool
}

type listFolderResponse struct {
	Entries []metadataResponse `json:"entries"`
	Cursor  string             `json:"cursor"`
	HasMore bool               `json:"has_more"`
}

// LongpollResult reports whether changes happened under a cursor.
type LongpollResult struct {
	Changes bool `json:"changes"`
	// Backoff is the number of seconds to wait before polling again; zero
	// when the server sent none.
	Backoff int `json:"backoff"`
}

// SearchMatch is one search hit.
type SearchMatch struct {
	MatchType string
	Entry     Entry
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Matches []SearchMatch
	More    bool
	Start   int
}

type searchResponse struct {
	Matches []struct {
		MatchType struct {
			Tag string `json:"tag"`
		} `json:"match_type"`
		Metadata metadataResponse `json:"metadata"`
	} `json:"matches"`
	More  bool `json:"more"`
	Start int  `json:"start"`
}

// Account is the authenticated user's account.
type Account struct {
	AccountID     string
	DisplayName   string
	Email         string
	EmailVerified bool
	Country       string
	Locale        string
	AccountType   string
}

type accountResponse struct {
	AccountID string `json:"account_id"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Country       string `json:"country"`
	Locale        string `json:"locale"`
	AccountType   struct {
		Tag string `json:"tag"`
	} `json:"account_type"`
}

// CopyReference is a token that lets another account save a copy of a path.
type CopyReference struct {
	Reference string
	Expires   time.Time
	Entry     Entry
}

type copyReferenceResponse struct {
	Metadata      metadataResponse `json:"metadata"`
	CopyReference string           `json:"copy_reference"`
	Expires       string           `json:"expires"`
}

// SaveURLStatus is the state of a save_url job.
type SaveURLStatus string

const (
	SaveURLInProgress SaveURLStatus = "in_progress"
	SaveURLComplete   SaveURLStatus = "complete"
	SaveURLFailed     SaveURLStatus = "failed"
	saveURLAsyncJob   SaveURLStatus = "async_job_id"
)

// SaveURLJob is the reply of save_url or check_job_status.
type SaveURLJob struct {
	Status SaveURLStatus
	JobID  string
	// Reason is the failure tag when Status is SaveURLFailed.
	Reason string
	// Entry is the saved file once Status is SaveURLComplete.
	Entry *Entry
}

type saveURLResponse struct {
	metadataResponse

	AsyncJobID string `json:"async_job_id"`
	Failed     struct {
		Tag string `json:"tag"`
	} `json:"failed"`
}

// uploadSessionStartResponse is the reply of upload_session/start.
type uploadSessionStartResponse struct {
	SessionID string `json:"session_id"`
}

// wrappedMetadata is the {"metadata": ...} envelope of the _v2 endpoints.
type wrappedMetadata struct {
	Metadata metadataResponse `json:"metadata"`
}
