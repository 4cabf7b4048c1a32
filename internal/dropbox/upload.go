package dropbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// DefaultChunkSize is the number of bytes sent per upload-session call.
const DefaultChunkSize int64 = 50_000_000

// DefaultMaxSingleUpload is the largest payload sent with one files/upload
// call. Larger payloads go through an UploadSession.
const DefaultMaxSingleUpload int64 = 150_000_000

// ErrSessionFailed is returned by Exec on a session that aborted earlier
// and has not been Reset.
var ErrSessionFailed = errors.New("dropbox: upload session failed; Reset before reuse")

// SessionState is the position of an UploadSession in the protocol.
type SessionState int

const (
	SessionNotStarted SessionState = iota
	SessionStarted
	SessionAppending
	SessionFinished
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionNotStarted:
		return "not-started"
	case SessionStarted:
		return "started"
	case SessionAppending:
		return "appending"
	case SessionFinished:
		return "finished"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UploadSession drives the start/append/finish protocol for one payload.
// The remote session id is assigned by start and held until finish; the
// offset only grows. Chunks are sent strictly in order.
type UploadSession struct {
	client    *Client
	src       io.ReaderAt
	size      int64
	chunkSize int64
	commit    CommitInfo

	state     SessionState
	sessionID string
	offset    int64
}

// NewUploadSession prepares a session that uploads size bytes of src to
// commit.Path. Nothing is sent until Exec.
func (c *Client) NewUploadSession(src io.ReaderAt, size int64, commit CommitInfo) *UploadSession {
	commit.Path = NormalizePath(commit.Path)

	return &UploadSession{
		client:    c,
		src:       src,
		size:      size,
		chunkSize: c.chunkSize,
		commit:    commit,
	}
}

func (s *UploadSession) State() SessionState { return s.state }
func (s *UploadSession) SessionID() string   { return s.sessionID }
func (s *UploadSession) Offset() int64       { return s.offset }

// Reset discards the session id and offset so the session can run again.
func (s *UploadSession) Reset() {
	s.state = SessionNotStarted
	s.sessionID = ""
	s.offset = 0
}

// Exec uploads the whole payload and returns the committed file's metadata.
//
// The first chunk opens the session. Further chunks are appended while
// more than one chunk remains; the rest (possibly empty) goes with finish.
// A payload that is an exact multiple of the chunk size therefore ends
// with a zero-length finish when it fits in one chunk. Any failure aborts
// the session; it must be Reset before it is used again. On success the
// session resets itself.
func (s *UploadSession) Exec(ctx context.Context) (*Entry, error) {
	if s.state == SessionFailed {
		return nil, ErrSessionFailed
	}

	if s.state != SessionNotStarted {
		return nil, fmt.Errorf("dropbox: upload session already in state %s", s.state)
	}

	entry, err := s.run(ctx)
	if err != nil {
		s.state = SessionFailed

		return nil, err
	}

	s.client.logger.Info("upload session complete",
		slog.String("path", s.commit.Path),
		slog.Int64("size", s.size),
	)

	s.Reset()

	return entry, nil
}

func (s *UploadSession) run(ctx context.Context) (*Entry, error) {
	s.client.logger.Info("starting upload session",
		slog.String("path", s.commit.Path),
		slog.Int64("size", s.size),
		slog.Int64("chunk_size", s.chunkSize),
	)

	for {
		chunk, err := s.read(s.chunkSize)
		if err != nil {
			return nil, err
		}

		if s.offset == 0 {
			if err := s.start(ctx, chunk); err != nil {
				return nil, err
			}
		} else {
			if err := s.appendChunk(ctx, chunk); err != nil {
				return nil, err
			}
		}

		s.offset += int64(len(chunk))

		if s.size-s.offset <= s.chunkSize {
			break
		}
	}

	last, err := s.read(s.size - s.offset)
	if err != nil {
		return nil, err
	}

	return s.finish(ctx, last)
}

// read returns up to n bytes of the source starting at the current offset.
func (s *UploadSession) read(n int64) ([]byte, error) {
	n = min(n, s.size-s.offset)
	if n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)

	read, err := s.src.ReadAt(buf, s.offset)
	if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
		return nil, &FileError{Op: "read", Path: s.commit.Path, Err: err}
	}

	return buf, nil
}

func (s *UploadSession) start(ctx context.Context, chunk []byte) error {
	resp, err := s.client.Dispatch(ctx, &Request{
		Endpoint:   EndpointContentUpload,
		Path:       "files/upload_session/start",
		Params:     map[string]any{"close": false},
		Body:       chunk,
		DecodeJSON: true,
	})
	if err != nil {
		return err
	}

	var started uploadSessionStartResponse
	if err := resp.Decode(&started); err != nil {
		return err
	}

	if started.SessionID == "" {
		return fmt.Errorf("%w: upload_session/start returned no session_id", ErrMalformedJSON)
	}

	s.sessionID = started.SessionID
	s.state = SessionStarted

	s.client.logger.Debug("upload session started", slog.Int("bytes", len(chunk)))

	return nil
}

func (s *UploadSession) appendChunk(ctx context.Context, chunk []byte) error {
	_, err := s.client.Dispatch(ctx, &Request{
		Endpoint: EndpointContentUpload,
		Path:     "files/upload_session/append_v2",
		Params: map[string]any{
			"cursor": s.cursor(),
			"close":  false,
		},
		Body: chunk,
	})
	if err != nil {
		return err
	}

	s.state = SessionAppending

	s.client.logger.Debug("upload session chunk appended",
		slog.Int64("offset", s.offset),
		slog.Int("bytes", len(chunk)),
	)

	return nil
}

func (s *UploadSession) finish(ctx context.Context, last []byte) (*Entry, error) {
	resp, err := s.client.Dispatch(ctx, &Request{
		Endpoint: EndpointContentUpload,
		Path:     "files/upload_session/finish",
		Params: map[string]any{
			"cursor": s.cursor(),
			"commit": s.commit,
		},
		Body:       last,
		DecodeJSON: true,
	})
	if err != nil {
		return nil, err
	}

	s.state = SessionFinished

	return decodeEntry(resp, EntryFile, s.client.logger)
}

func (s *UploadSession) cursor() map[string]any {
	return map[string]any{
		"session_id": s.sessionID,
		"offset":     s.offset,
	}
}

// Upload stores size bytes of src at commit.Path. Payloads up to the
// single-upload limit use one files/upload call; larger ones use an
// UploadSession.
func (c *Client) Upload(ctx context.Context, commit CommitInfo, src io.ReaderAt, size int64) (*Entry, error) {
	if size > c.maxSingleUpload {
		return c.NewUploadSession(src, size, commit).Exec(ctx)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, size), data); err != nil {
		return nil, &FileError{Op: "read", Path: commit.Path, Err: err}
	}

	return c.UploadBytes(ctx, commit, data)
}

// UploadBytes stores data at commit.Path with a single call.
func (c *Client) UploadBytes(ctx context.Context, commit CommitInfo, data []byte) (*Entry, error) {
	if int64(len(data)) > c.maxSingleUpload {
		return nil, fmt.Errorf("%w: %d bytes exceeds the single upload limit of %d; use Upload",
			ErrBadInput, len(data), c.maxSingleUpload)
	}

	commit.Path = NormalizePath(commit.Path)

	c.logger.Info("simple upload",
		slog.String("path", commit.Path),
		slog.Int("size", len(data)),
	)

	resp, err := c.Dispatch(ctx, &Request{
		Endpoint:   EndpointContentUpload,
		Path:       "files/upload",
		Params:     commitParams(commit),
		Body:       data,
		DecodeJSON: true,
	})
	if err != nil {
		return nil, err
	}

	return decodeEntry(resp, EntryFile, c.logger)
}

// UploadFile uploads the local file at localPath.
func (c *Client) UploadFile(ctx context.Context, commit CommitInfo, localPath string) (*Entry, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, &FileError{Op: "open", Path: localPath, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &FileError{Op: "stat", Path: localPath, Err: err}
	}

	if info.IsDir() {
		return nil, &FileError{Op: "open", Path: localPath, Err: errors.New("is a directory")}
	}

	return c.Upload(ctx, commit, f, info.Size())
}

// commitParams flattens a CommitInfo into the files/upload argument.
func commitParams(commit CommitInfo) map[string]any {
	return map[string]any{
		"path":       commit.Path,
		"mode":       commit.Mode,
		"autorename": commit.AutoRename,
		"mute":       commit.Mute,
	}
}

// decodeEntry decodes resp's value as one metadata object.
func decodeEntry(resp *Response, fallback EntryKind, logger *slog.Logger) (*Entry, error) {
	var md metadataResponse
	if err := resp.Decode(&md); err != nil {
		return nil, err
	}

	entry := md.toEntry(fallback, logger)

	return &entry, nil
}
