package dropbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/pkg/contenthash"
)

// defaultPollInterval paces SaveURLAndWait between job status checks.
const defaultPollInterval = time.Second

// DefaultLongpollTimeout is how long ListFolderLongpoll asks the server to
// hold the request open.
const DefaultLongpollTimeout = 30 * time.Second

// Local file permissions for downloads.
const (
	downloadFilePerms = 0o644
	downloadDirPerms  = 0o755
)

// ErrAlreadyExists is returned by CreateFolder when the path is taken.
var ErrAlreadyExists = errors.New("dropbox: path already exists")

// ErrContentHashMismatch is returned when downloaded bytes do not match the
// content_hash of their metadata. Nothing is written to the destination.
var ErrContentHashMismatch = errors.New("dropbox: content hash mismatch")

// Content is a thumbnail or preview together with the file it renders.
type Content struct {
	Entry       Entry
	ContentType string
	Data        []byte
}

// SearchOptions selects a files/search page.
type SearchOptions struct {
	Path       string
	Query      string
	Start      int
	MaxResults int        // defaults to 100
	Mode       SearchMode // defaults to SearchFilename
}

// GetCurrentAccount returns the account the access token belongs to.
func (c *Client) GetCurrentAccount(ctx context.Context) (*Account, error) {
	resp, err := c.Dispatch(ctx, &Request{Endpoint: EndpointCommand, Path: "users/get_current_account"})
	if err != nil {
		return nil, err
	}

	var ar accountResponse
	if err := resp.Decode(&ar); err != nil {
		return nil, err
	}

	return &Account{
		AccountID:     ar.AccountID,
		DisplayName:   ar.Name.DisplayName,
		Email:         ar.Email,
		EmailVerified: ar.EmailVerified,
		Country:       ar.Country,
		Locale:        ar.Locale,
		AccountType:   ar.AccountType.Tag,
	}, nil
}

// GetMetadata returns the entry at path.
func (c *Client) GetMetadata(ctx context.Context, path string) (*Entry, error) {
	resp, err := c.command(ctx, "files/get_metadata", map[string]any{"path": NormalizePath(path)})
	if err != nil {
		return nil, err
	}

	return decodeEntry(resp, EntryUnknown, c.logger)
}

// Exists reports whether anything lives at path. A path conflict reply is
// the negative answer; any other failure is returned as an error. The
// expected failure is not logged at error level.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	err := c.quietly(func() error {
		_, err := c.GetMetadata(ctx, path)
		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrConflict):
		return false, nil
	default:
		return false, err
	}
}

// CreateFolder creates a folder at path. Returns ErrAlreadyExists when
// something is already there.
func (c *Client) CreateFolder(ctx context.Context, path string, autorename bool) (*Entry, error) {
	exists, err := c.Exists(ctx, path)
	if err != nil {
		return nil, err
	}

	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}

	resp, err := c.command(ctx, "files/create_folder_v2", map[string]any{
		"path":       NormalizePath(path),
		"autorename": autorename,
	})
	if err != nil {
		return nil, err
	}

	return decodeWrapped(resp, EntryFolder, c.logger)
}

// Delete removes the file or folder at path and returns its last metadata.
func (c *Client) Delete(ctx context.Context, path string) (*Entry, error) {
	resp, err := c.command(ctx, "files/delete_v2", map[string]any{"path": NormalizePath(path)})
	if err != nil {
		return nil, err
	}

	return decodeWrapped(resp, EntryUnknown, c.logger)
}

// ListFolder returns the first page of the folder's entries.
func (c *Client) ListFolder(ctx context.Context, path string, recursive bool) (*ListFolderResult, error) {
	resp, err := c.command(ctx, "files/list_folder", map[string]any{
		"path":      NormalizePath(path),
		"recursive": recursive,
	})
	if err != nil {
		return nil, err
	}

	return c.decodeListFolder(resp)
}

// ListFolderContinue returns the page after cursor.
func (c *Client) ListFolderContinue(ctx context.Context, cursor string) (*ListFolderResult, error) {
	resp, err := c.command(ctx, "files/list_folder/continue", map[string]any{"cursor": cursor})
	if err != nil {
		return nil, err
	}

	return c.decodeListFolder(resp)
}

// ListFolderAll follows the cursor until the listing is complete. The
// returned cursor can be passed to ListFolderLongpoll.
func (c *Client) ListFolderAll(ctx context.Context, path string, recursive bool) ([]Entry, string, error) {
	page, err := c.ListFolder(ctx, path, recursive)
	if err != nil {
		return nil, "", err
	}

	entries := page.Entries

	for page.HasMore {
		page, err = c.ListFolderContinue(ctx, page.Cursor)
		if err != nil {
			return nil, "", err
		}

		entries = append(entries, page.Entries...)
	}

	return entries, page.Cursor, nil
}

func (c *Client) decodeListFolder(resp *Response) (*ListFolderResult, error) {
	var lr listFolderResponse
	if err := resp.Decode(&lr); err != nil {
		return nil, err
	}

	out := &ListFolderResult{
		Entries: make([]Entry, 0, len(lr.Entries)),
		Cursor:  lr.Cursor,
		HasMore: lr.HasMore,
	}

	for i := range lr.Entries {
		out.Entries = append(out.Entries, lr.Entries[i].toEntry(EntryUnknown, c.logger))
	}

	return out, nil
}

// ListFolderLongpoll blocks until entries under cursor change or timeout
// elapses. A non-positive timeout uses DefaultLongpollTimeout. The HTTP
// client's own timeout must exceed the wait.
func (c *Client) ListFolderLongpoll(ctx context.Context, cursor string, timeout time.Duration) (*LongpollResult, error) {
	if timeout <= 0 {
		timeout = DefaultLongpollTimeout
	}

	resp, err := c.Dispatch(ctx, &Request{
		Endpoint: EndpointNotify,
		Path:     "files/list_folder/longpoll",
		Params: map[string]any{
			"cursor":  cursor,
			"timeout": int(timeout / time.Second),
		},
		NoAuth: true,
	})
	if err != nil {
		return nil, err
	}

	var out LongpollResult
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}

	return &out, nil
}

// Search runs a files/search query.
func (c *Client) Search(ctx context.Context, opts SearchOptions) (*SearchResult, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}

	if opts.Mode == "" {
		opts.Mode = SearchFilename
	}

	resp, err := c.command(ctx, "files/search", map[string]any{
		"path":        NormalizePath(opts.Path),
		"query":       opts.Query,
		"start":       opts.Start,
		"max_results": opts.MaxResults,
		"mode":        string(opts.Mode),
	})
	if err != nil {
		return nil, err
	}

	var sr searchResponse
	if err := resp.Decode(&sr); err != nil {
		return nil, err
	}

	out := &SearchResult{
		Matches: make([]SearchMatch, 0, len(sr.Matches)),
		More:    sr.More,
		Start:   sr.Start,
	}

	for i := range sr.Matches {
		out.Matches = append(out.Matches, SearchMatch{
			MatchType: sr.Matches[i].MatchType.Tag,
			Entry:     sr.Matches[i].Metadata.toEntry(EntryUnknown, c.logger),
		})
	}

	return out, nil
}

// CopyReferenceGet creates a copy reference for path.
func (c *Client) CopyReferenceGet(ctx context.Context, path string) (*CopyReference, error) {
	resp, err := c.command(ctx, "files/copy_reference/get", map[string]any{"path": NormalizePath(path)})
	if err != nil {
		return nil, err
	}

	var cr copyReferenceResponse
	if err := resp.Decode(&cr); err != nil {
		return nil, err
	}

	return &CopyReference{
		Reference: cr.CopyReference,
		Expires:   parseTimestamp(cr.Expires, "expires", cr.Metadata.PathDisplay, c.logger),
		Entry:     cr.Metadata.toEntry(EntryUnknown, c.logger),
	}, nil
}

// CopyReferenceSave saves the content behind reference at path.
func (c *Client) CopyReferenceSave(ctx context.Context, path, reference string) (*Entry, error) {
	resp, err := c.command(ctx, "files/copy_reference/save", map[string]any{
		"copy_reference": reference,
		"path":           NormalizePath(path),
	})
	if err != nil {
		return nil, err
	}

	return decodeWrapped(resp, EntryUnknown, c.logger)
}

// SaveURL asks the server to download url into path. The reply is usually
// an in-progress job; poll it with CheckSaveURLJob.
func (c *Client) SaveURL(ctx context.Context, path, url string) (*SaveURLJob, error) {
	resp, err := c.command(ctx, "files/save_url", map[string]any{
		"path": NormalizePath(path),
		"url":  url,
	})
	if err != nil {
		return nil, err
	}

	return c.decodeSaveURLJob(resp)
}

// CheckSaveURLJob returns the state of a save_url job.
func (c *Client) CheckSaveURLJob(ctx context.Context, jobID string) (*SaveURLJob, error) {
	resp, err := c.command(ctx, "files/save_url/check_job_status", map[string]any{"async_job_id": jobID})
	if err != nil {
		return nil, err
	}

	job, err := c.decodeSaveURLJob(resp)
	if err != nil {
		return nil, err
	}

	job.JobID = jobID

	return job, nil
}

// SaveURLAndWait runs SaveURL and polls until the job completes or fails.
func (c *Client) SaveURLAndWait(ctx context.Context, path, url string) (*Entry, error) {
	job, err := c.SaveURL(ctx, path, url)
	if err != nil {
		return nil, err
	}

	for {
		switch job.Status {
		case SaveURLComplete:
			return job.Entry, nil
		case SaveURLFailed:
			return nil, fmt.Errorf("dropbox: save_url %s failed: %s", path, job.Reason)
		}

		if job.JobID == "" {
			return nil, fmt.Errorf("%w: save_url returned status %q without a job id", ErrMalformedJSON, job.Status)
		}

		if err := c.sleepFunc(ctx, c.pollInterval); err != nil {
			return nil, err
		}

		c.logger.Debug("polling save_url job", slog.String("path", path))

		job, err = c.CheckSaveURLJob(ctx, job.JobID)
		if err != nil {
			return nil, err
		}
	}
}

func (c *Client) decodeSaveURLJob(resp *Response) (*SaveURLJob, error) {
	var sr saveURLResponse
	if err := resp.Decode(&sr); err != nil {
		return nil, err
	}

	job := &SaveURLJob{Status: SaveURLStatus(sr.Tag)}

	switch job.Status {
	case saveURLAsyncJob:
		job.Status = SaveURLInProgress
		job.JobID = sr.AsyncJobID
	case SaveURLComplete:
		// The completed file's fields sit beside the tag.
		md := sr.metadataResponse
		md.Tag = ""
		entry := md.toEntry(EntryFile, c.logger)
		job.Entry = &entry
	case SaveURLFailed:
		job.Reason = sr.Failed.Tag
	case SaveURLInProgress:
	default:
		return nil, fmt.Errorf("%w: unknown save_url status %q", ErrMalformedJSON, sr.Tag)
	}

	return job, nil
}

// Download writes the file at path to w and returns its metadata.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (*Entry, error) {
	resp, err := c.Dispatch(ctx, &Request{
		Endpoint: EndpointContentDownload,
		Path:     "files/download",
		Params:   map[string]any{"path": NormalizePath(path)},
	})
	if err != nil {
		return nil, err
	}

	entry, err := decodeEntry(resp, EntryFile, c.logger)
	if err != nil {
		return nil, err
	}

	if err := verifyContentHash(entry, resp.Body); err != nil {
		return nil, err
	}

	if _, err := w.Write(resp.Body); err != nil {
		return nil, &FileError{Op: "write", Path: path, Err: err}
	}

	return entry, nil
}

// verifyContentHash checks data against the content_hash Dropbox reported.
// Entries without a hash are accepted.
func verifyContentHash(entry *Entry, data []byte) error {
	if entry.ContentHash == "" {
		return nil
	}

	if got := contenthash.Sum(data); got != entry.ContentHash {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrContentHashMismatch, entry.PathDisplay, got, entry.ContentHash)
	}

	return nil
}

// DownloadFile saves the file at path to localPath, creating missing
// parent directories. An existing localPath is truncated.
func (c *Client) DownloadFile(ctx context.Context, path, localPath string) (*Entry, error) {
	var buf bytes.Buffer

	if err := prepareLocalPath(localPath); err != nil {
		return nil, err
	}

	entry, err := c.Download(ctx, path, &buf)
	if err != nil {
		return nil, err
	}

	if err := writeLocalFile(localPath, buf.Bytes()); err != nil {
		return nil, err
	}

	return entry, nil
}

// DownloadZip writes the folder at path to w as a zip archive.
func (c *Client) DownloadZip(ctx context.Context, path string, w io.Writer) (*Entry, error) {
	resp, err := c.Dispatch(ctx, &Request{
		Endpoint: EndpointContentDownload,
		Path:     "files/download_zip",
		Params:   map[string]any{"path": NormalizePath(path)},
	})
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(resp.Body); err != nil {
		return nil, &FileError{Op: "write", Path: path, Err: err}
	}

	return decodeWrapped(resp, EntryFolder, c.logger)
}

// DownloadZipFile saves the folder at path as a zip archive at localPath.
func (c *Client) DownloadZipFile(ctx context.Context, path, localPath string) (*Entry, error) {
	var buf bytes.Buffer

	if err := prepareLocalPath(localPath); err != nil {
		return nil, err
	}

	entry, err := c.DownloadZip(ctx, path, &buf)
	if err != nil {
		return nil, err
	}

	if err := writeLocalFile(localPath, buf.Bytes()); err != nil {
		return nil, err
	}

	return entry, nil
}

// GetThumbnail returns a thumbnail of the image at path. Empty format and
// size default to jpeg and w64h64.
func (c *Client) GetThumbnail(
	ctx context.Context, path string, format ThumbnailFormat, size ThumbnailSize,
) (*Content, error) {
	if format == "" {
		format = ThumbnailJPEG
	}

	if size == "" {
		size = defaultThumbnailDim
	}

	return c.content(ctx, "files/get_thumbnail", map[string]any{
		"path":   NormalizePath(path),
		"format": string(format),
		"size":   string(size),
	})
}

// GetPreview returns a PDF or HTML rendering of the document at path.
func (c *Client) GetPreview(ctx context.Context, path string) (*Content, error) {
	return c.content(ctx, "files/get_preview", map[string]any{"path": NormalizePath(path)})
}

func (c *Client) content(ctx context.Context, endpoint string, params map[string]any) (*Content, error) {
	resp, err := c.Dispatch(ctx, &Request{
		Endpoint: EndpointContentDownload,
		Path:     endpoint,
		Params:   params,
	})
	if err != nil {
		return nil, err
	}

	entry, err := decodeEntry(resp, EntryFile, c.logger)
	if err != nil {
		return nil, err
	}

	return &Content{
		Entry:       *entry,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        resp.Body,
	}, nil
}

// command dispatches one command-family call.
func (c *Client) command(ctx context.Context, path string, params map[string]any) (*Response, error) {
	return c.Dispatch(ctx, &Request{Endpoint: EndpointCommand, Path: path, Params: params})
}

// decodeWrapped decodes the {"metadata": ...} envelope.
func decodeWrapped(resp *Response, fallback EntryKind, logger *slog.Logger) (*Entry, error) {
	var wm wrappedMetadata
	if err := resp.Decode(&wm); err != nil {
		return nil, err
	}

	entry := wm.Metadata.toEntry(fallback, logger)

	return &entry, nil
}

// prepareLocalPath rejects a directory destination and creates the parent.
func prepareLocalPath(localPath string) error {
	if info, err := os.Stat(localPath); err == nil && info.IsDir() {
		return &FileError{Op: "write", Path: localPath, Err: errors.New("is a directory")}
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, downloadDirPerms); err != nil {
		return &FileError{Op: "mkdir", Path: dir, Err: err}
	}

	return nil
}

func writeLocalFile(localPath string, data []byte) error {
	if err := os.WriteFile(localPath, data, downloadFilePerms); err != nil {
		return &FileError{Op: "write", Path: localPath, Err: err}
	}

	return nil
}
