package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
)

func conflictReply(summary string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error_summary":"` + summary + `"}`))
	}
}

func TestArgOr(t *testing.T) {
	assert.Equal(t, "a", argOr([]string{"a"}, 0, "x"))
	assert.Equal(t, "x", argOr([]string{"a"}, 1, "x"))
	assert.Equal(t, "", argOr(nil, 0, ""))
}

func TestEntryMatcher(t *testing.T) {
	report := &dropbox.Entry{Name: "report.pdf", PathDisplay: "/Work/2024/report.pdf"}
	notes := &dropbox.Entry{Name: "notes.txt", PathDisplay: "/Work/notes.txt"}

	tests := []struct {
		pattern    string
		wantReport bool
		wantNotes  bool
	}{
		{"", true, true},
		{"*.pdf", true, false},
		{"*.{pdf,txt}", true, true},
		{"Work/*", false, true},
		{"Work/**/*.pdf", true, false},
		{"**/notes.txt", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			match, err := entryMatcher(tt.pattern)
			require.NoError(t, err)

			assert.Equal(t, tt.wantReport, match(report))
			assert.Equal(t, tt.wantNotes, match(notes))
		})
	}
}

func TestEntryMatcher_Invalid(t *testing.T) {
	_, err := entryMatcher("[unclosed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--match")
}

func TestDefaultLocalName(t *testing.T) {
	tests := []struct {
		remote string
		zip    bool
		want   string
	}{
		{"/Docs/a.txt", false, "a.txt"},
		{"Docs/a.txt", false, "a.txt"},
		{"/Photos", true, "Photos.zip"},
		{"/backup.ZIP", true, "backup.ZIP"},
		{"", true, "dropbox.zip"},
		{"/", false, "dropbox"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultLocalName(tt.remote, tt.zip), "remote %q zip %v", tt.remote, tt.zip)
	}
}

func TestRemoteTarget(t *testing.T) {
	local := filepath.Join("some", "dir", "photo.jpg")

	assert.Equal(t, "/photo.jpg", remoteTarget(local, ""))
	assert.Equal(t, "/Camera/photo.jpg", remoteTarget(local, "/Camera/"))
	assert.Equal(t, "/Camera/renamed.jpg", remoteTarget(local, "/Camera/renamed.jpg"))
}

func putCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := newPutCmd()
	require.NoError(t, cmd.ParseFlags(args))

	return cmd
}

func TestPutOptionsFromFlags(t *testing.T) {
	opts, err := putOptionsFromFlags(putCmd(t))
	require.NoError(t, err)
	assert.Equal(t, putOptions{Mode: dropbox.WriteModeAdd}, opts)

	opts, err = putOptionsFromFlags(putCmd(t, "--overwrite", "--mute"))
	require.NoError(t, err)
	assert.Equal(t, dropbox.WriteModeOverwrite, opts.Mode)
	assert.True(t, opts.Mute)

	opts, err = putOptionsFromFlags(putCmd(t, "--rev", "abc123", "--autorename"))
	require.NoError(t, err)
	assert.Equal(t, dropbox.WriteModeUpdate("abc123"), opts.Mode)
	assert.True(t, opts.AutoRename)

	_, err = putOptionsFromFlags(putCmd(t, "--overwrite", "--rev", "abc123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

const listReply = `{"entries":[
	{".tag":"folder","name":"Docs","path_display":"/Docs","id":"id:d"},
	{".tag":"file","name":"a.txt","path_display":"/a.txt","id":"id:a","rev":"r1","size":2048,
	 "server_modified":"2019-12-25T08:00:00Z"},
	{".tag":"file","name":"b.pdf","path_display":"/b.pdf","id":"id:b","rev":"r2","size":10}
],"cursor":"c1","has_more":false}`

func TestRunLs_Table(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/list_folder": jsonReply(listReply),
	})
	cc, stdout, _ := testCLIContext(t, srv)

	require.NoError(t, runLs(context.Background(), cc, "/", false, ""))

	out := stdout.String()
	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "/Docs")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "/b.pdf")
}

func TestRunLs_MatchAndJSON(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/list_folder": jsonReply(listReply),
	})
	cc, stdout, _ := testCLIContext(t, srv)
	cc.Flags.JSON = true

	require.NoError(t, runLs(context.Background(), cc, "", true, "*.pdf"))

	var got []entryJSON
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "/b.pdf", got[0].Path)
	assert.Equal(t, "file", got[0].Kind)
	assert.Equal(t, int64(10), got[0].Size)
}

func TestRunLs_InvalidPatternMakesNoCall(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{})
	cc, _, _ := testCLIContext(t, srv)

	require.Error(t, runLs(context.Background(), cc, "/", false, "[bad"))
}

func TestRunStat(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/get_metadata": jsonReply(`{".tag":"file","name":"a.txt","path_display":"/a.txt",` +
			`"id":"id:a","rev":"r1","size":5,"content_hash":"abc"}`),
	})
	cc, stdout, _ := testCLIContext(t, srv)

	require.NoError(t, runStat(context.Background(), cc, "/a.txt"))

	out := stdout.String()
	assert.Contains(t, out, "Name:     a.txt")
	assert.Contains(t, out, "Type:     file")
	assert.Contains(t, out, "(5 bytes)")
	assert.Contains(t, out, "Hash:     abc")
}

func TestRunStat_NotFound(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/get_metadata": conflictReply("path/not_found/.."),
	})
	cc, _, _ := testCLIContext(t, srv)

	err := runStat(context.Background(), cc, "/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunMkdir(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/get_metadata":     conflictReply("path/not_found/.."),
		"/2/files/create_folder_v2": jsonReply(`{"metadata":{"name":"New","path_display":"/New","id":"id:n"}}`),
	})
	cc, _, stderr := testCLIContext(t, srv)

	require.NoError(t, runMkdir(context.Background(), cc, "/New", false))
	assert.Equal(t, "Created /New\n", stderr.String())
}

func TestRunMkdir_AlreadyExists(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/get_metadata": jsonReply(`{".tag":"folder","name":"New","path_display":"/New"}`),
	})
	cc, _, _ := testCLIContext(t, srv)

	err := runMkdir(context.Background(), cc, "/New", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRunRm(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/delete_v2": jsonReply(`{"metadata":{".tag":"file","name":"a.txt","path_display":"/a.txt"}}`),
	})
	cc, _, stderr := testCLIContext(t, srv)

	require.NoError(t, runRm(context.Background(), cc, "/a.txt"))
	assert.Equal(t, "Deleted /a.txt\n", stderr.String())
}

func TestRunPut_SingleRequest(t *testing.T) {
	var (
		gotArg  map[string]any
		gotBody []byte
	)

	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/upload": func(w http.ResponseWriter, r *http.Request) {
			var err error
			gotBody, err = io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &gotArg))

			_, _ = w.Write([]byte(`{"name":"hello.txt","path_display":"/Inbox/hello.txt","rev":"r1","size":5}`))
		},
	})
	cc, _, stderr := testCLIContext(t, srv)

	local := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello"), 0o600))

	err := runPut(context.Background(), cc, local, "/Inbox/", putOptions{Mode: dropbox.WriteModeOverwrite, Mute: true})
	require.NoError(t, err)

	assert.Equal(t, "hello", string(gotBody))
	assert.Equal(t, "/Inbox/hello.txt", gotArg["path"])
	assert.Equal(t, "overwrite", gotArg["mode"])
	assert.Equal(t, true, gotArg["mute"])
	assert.Contains(t, stderr.String(), "Uploaded "+local+" -> /Inbox/hello.txt (5 B)")
}

func TestRunPut_MissingLocalFile(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{})
	cc, _, _ := testCLIContext(t, srv)

	err := runPut(context.Background(), cc, filepath.Join(t.TempDir(), "nope"), "", putOptions{Mode: dropbox.WriteModeAdd})
	require.Error(t, err)
}

func TestRunGet_ToFile(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/download": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Dropbox-API-Result", `{"name":"a.txt","path_display":"/a.txt","size":5}`)
			_, _ = w.Write([]byte("hello"))
		},
	})
	cc, _, stderr := testCLIContext(t, srv)

	local := filepath.Join(t.TempDir(), "nested", "a.txt")

	require.NoError(t, runGet(context.Background(), cc, "/a.txt", local, false))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Contains(t, stderr.String(), "Downloaded /a.txt -> "+local)
}

func TestRunGet_ToStdout(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/download": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Dropbox-API-Result", `{"name":"a.txt","path_display":"/a.txt","size":5}`)
			_, _ = w.Write([]byte("hello"))
		},
	})
	cc, stdout, stderr := testCLIContext(t, srv)

	require.NoError(t, runGet(context.Background(), cc, "/a.txt", stdoutArg, false))
	assert.Equal(t, "hello", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRunCopyRef_JSON(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/copy_reference/get": jsonReply(`{"copy_reference":"ref-1","expires":"2030-01-01T00:00:00Z",` +
			`"metadata":{".tag":"file","name":"a.txt","path_display":"/a.txt","size":5}}`),
	})
	cc, stdout, _ := testCLIContext(t, srv)
	cc.Flags.JSON = true

	require.NoError(t, runCopyRef(context.Background(), cc, "/a.txt"))

	var got copyRefJSON
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, "ref-1", got.Reference)
	assert.Equal(t, "2030-01-01T00:00:00Z", got.Expires)
	assert.Equal(t, "/a.txt", got.Entry.Path)
}

func TestRunCopyRef_Text(t *testing.T) {
	srv := apiServer(t, map[string]http.HandlerFunc{
		"/2/files/copy_reference/get": jsonReply(`{"copy_reference":"ref-1",` +
			`"metadata":{".tag":"file","name":"a.txt","path_display":"/a.txt"}}`),
	})
	cc, stdout, stderr := testCLIContext(t, srv)

	require.NoError(t, runCopyRef(context.Background(), cc, "/a.txt"))
	assert.Equal(t, "ref-1\n", stdout.String())
	assert.NotContains(t, stderr.String(), "Expires")
}
