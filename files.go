package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
)

// stdoutArg as a local path streams downloads to stdout.
const stdoutArg = "-"

// renderedFilePerms is used for thumbnails and previews written locally.
const renderedFilePerms = 0o644

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			match, _ := cmd.Flags().GetString("match")

			return runLs(cmd.Context(), cliContextFrom(cmd.Context()), argOr(args, 0, ""), recursive, match)
		},
	}

	cmd.Flags().BoolP("recursive", "r", false, "list all descendants")
	cmd.Flags().String("match", "", "only show entries matching a glob (e.g. '**/*.pdf')")

	return cmd
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Display file or folder metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStat(cmd.Context(), cliContextFrom(cmd.Context()), args[0])
		},
	}
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			autorename, _ := cmd.Flags().GetBool("autorename")

			return runMkdir(cmd.Context(), cliContextFrom(cmd.Context()), args[0], autorename)
		},
	}

	cmd.Flags().Bool("autorename", false, "pick a free name instead of failing on conflict")

	return cmd
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder (folders are deleted with their contents)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd.Context(), cliContextFrom(cmd.Context()), args[0])
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path|-]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), cliContextFrom(cmd.Context()), args[0], argOr(args, 1, ""), false)
		},
	}
}

func newGetZipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-zip <remote-folder> [local-path|-]",
		Short: "Download a folder as a zip archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd.Context(), cliContextFrom(cmd.Context()), args[0], argOr(args, 1, ""), true)
		},
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-path]",
		Short: "Upload a file (large files use an upload session)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := putOptionsFromFlags(cmd)
			if err != nil {
				return err
			}

			return runPut(cmd.Context(), cliContextFrom(cmd.Context()), args[0], argOr(args, 1, ""), opts)
		},
	}

	cmd.Flags().Bool("overwrite", false, "replace an existing file")
	cmd.Flags().String("rev", "", "only replace the file if it is still at this revision")
	cmd.Flags().Bool("autorename", false, "pick a free name on conflict")
	cmd.Flags().Bool("mute", false, "do not notify the user's devices")

	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search files and folders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := dropbox.SearchOptions{Query: args[0]}
			opts.Path, _ = cmd.Flags().GetString("path")
			opts.Start, _ = cmd.Flags().GetInt("start")
			opts.MaxResults, _ = cmd.Flags().GetInt("max")

			mode, _ := cmd.Flags().GetString("mode")
			opts.Mode = dropbox.SearchMode(mode)

			match, _ := cmd.Flags().GetString("match")

			return runSearch(cmd.Context(), cliContextFrom(cmd.Context()), opts, match)
		},
	}

	cmd.Flags().String("path", "", "folder to search in")
	cmd.Flags().Int("start", 0, "index of the first result")
	cmd.Flags().Int("max", 100, "maximum number of results")
	cmd.Flags().String("mode", string(dropbox.SearchFilename), "filename, filename_and_content or deleted_filename")
	cmd.Flags().String("match", "", "only show results matching a glob")

	return cmd
}

func newThumbnailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thumbnail <remote-path> <local-path>",
		Short: "Save a thumbnail of an image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := cliContextFrom(cmd.Context())
			format, _ := cmd.Flags().GetString("format")
			size, _ := cmd.Flags().GetString("size")

			client, err := cc.newClient(cmd.Context())
			if err != nil {
				return err
			}

			content, err := client.GetThumbnail(cmd.Context(), args[0],
				dropbox.ThumbnailFormat(format), dropbox.ThumbnailSize(size))
			if err != nil {
				return fmt.Errorf("thumbnail %q: %w", args[0], err)
			}

			return saveContent(cc, content, args[1])
		},
	}

	cmd.Flags().String("format", string(dropbox.ThumbnailJPEG), "jpeg or png")
	cmd.Flags().String("size", string(dropbox.ThumbnailW64H64), "w32h32, w64h64, w128h128, w640h480 or w1024h768")

	return cmd
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <remote-path> <local-path>",
		Short: "Save a PDF or HTML preview of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := cliContextFrom(cmd.Context())

			client, err := cc.newClient(cmd.Context())
			if err != nil {
				return err
			}

			content, err := client.GetPreview(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("preview %q: %w", args[0], err)
			}

			return saveContent(cc, content, args[1])
		},
	}
}

func newSaveURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save-url <url> <remote-path>",
		Short: "Have Dropbox download a URL into a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noWait, _ := cmd.Flags().GetBool("no-wait")

			return runSaveURL(cmd.Context(), cliContextFrom(cmd.Context()), args[0], args[1], noWait)
		},
	}

	cmd.Flags().Bool("no-wait", false, "print the job id instead of waiting for completion")

	return cmd
}

func newCopyRefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy-ref <path>",
		Short: "Create a copy reference for a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopyRef(cmd.Context(), cliContextFrom(cmd.Context()), args[0])
		},
	}
}

func newPasteRefCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paste-ref <reference> <path>",
		Short: "Save a copy reference into this account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := cliContextFrom(cmd.Context())

			client, err := cc.newClient(cmd.Context())
			if err != nil {
				return err
			}

			entry, err := client.CopyReferenceSave(cmd.Context(), args[1], args[0])
			if err != nil {
				return fmt.Errorf("saving copy reference: %w", err)
			}

			return printEntry(cc, entry)
		},
	}
}

func argOr(args []string, i int, fallback string) string {
	if i < len(args) {
		return args[i]
	}

	return fallback
}

// entryMatcher compiles a --match glob. Patterns without "/" match the
// entry name; others match the path without its leading slash.
func entryMatcher(pattern string) (func(*dropbox.Entry) bool, error) {
	if pattern == "" {
		return func(*dropbox.Entry) bool { return true }, nil
	}

	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid --match pattern %q", pattern)
	}

	byName := !strings.Contains(pattern, "/")

	return func(e *dropbox.Entry) bool {
		subject := strings.TrimPrefix(e.PathDisplay, "/")
		if byName {
			subject = e.Name
		}

		// Pattern was validated above, so Match cannot fail.
		ok, _ := doublestar.Match(pattern, subject)

		return ok
	}, nil
}

func runLs(ctx context.Context, cc *CLIContext, remotePath string, recursive bool, match string) error {
	matches, err := entryMatcher(match)
	if err != nil {
		return err
	}

	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	cc.Logger.Debug("ls", slog.String("path", remotePath), slog.Bool("recursive", recursive))

	entries, _, err := client.ListFolderAll(ctx, remotePath, recursive)
	if err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	kept := make([]dropbox.Entry, 0, len(entries))
	for i := range entries {
		if matches(&entries[i]) {
			kept = append(kept, entries[i])
		}
	}

	return printEntries(cc, kept)
}

func printEntries(cc *CLIContext, entries []dropbox.Entry) error {
	if cc.Flags.JSON {
		out := make([]entryJSON, 0, len(entries))
		for i := range entries {
			out = append(out, toEntryJSON(&entries[i]))
		}

		return writeJSON(cc.Stdout, out)
	}

	rows := make([][]string, 0, len(entries))
	for i := range entries {
		rows = append(rows, entryRow(&entries[i]))
	}

	printTable(cc.Stdout, entryHeaders, rows)

	return nil
}

func runStat(ctx context.Context, cc *CLIContext, remotePath string) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	entry, err := client.GetMetadata(ctx, remotePath)
	if err != nil {
		if dropbox.IsNotFound(err) {
			return fmt.Errorf("%q: not found", remotePath)
		}

		return fmt.Errorf("stat %q: %w", remotePath, err)
	}

	return printEntry(cc, entry)
}

func printEntry(cc *CLIContext, e *dropbox.Entry) error {
	if cc.Flags.JSON {
		return writeJSON(cc.Stdout, toEntryJSON(e))
	}

	fmt.Fprintf(cc.Stdout, "Name:     %s\n", e.Name)
	fmt.Fprintf(cc.Stdout, "Path:     %s\n", e.PathDisplay)
	fmt.Fprintf(cc.Stdout, "Type:     %s\n", e.Kind)

	if e.ID != "" {
		fmt.Fprintf(cc.Stdout, "ID:       %s\n", e.ID)
	}

	if e.IsFile() {
		fmt.Fprintf(cc.Stdout, "Size:     %s (%d bytes)\n", formatSize(e.Size), e.Size)
		fmt.Fprintf(cc.Stdout, "Rev:      %s\n", e.Rev)
		fmt.Fprintf(cc.Stdout, "Modified: %s\n", formatTime(e.ServerModified))

		if e.ContentHash != "" {
			fmt.Fprintf(cc.Stdout, "Hash:     %s\n", e.ContentHash)
		}
	}

	return nil
}

func runMkdir(ctx context.Context, cc *CLIContext, remotePath string, autorename bool) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	entry, err := client.CreateFolder(ctx, remotePath, autorename)
	if errors.Is(err, dropbox.ErrAlreadyExists) {
		return fmt.Errorf("%q already exists", remotePath)
	}

	if err != nil {
		return fmt.Errorf("creating %q: %w", remotePath, err)
	}

	cc.Statusf("Created %s\n", entry.PathDisplay)

	return nil
}

func runRm(ctx context.Context, cc *CLIContext, remotePath string) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	entry, err := client.Delete(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", remotePath, err)
	}

	cc.Statusf("Deleted %s\n", entry.PathDisplay)

	return nil
}

// defaultLocalName derives a local file name from a remote path.
func defaultLocalName(remotePath string, zip bool) string {
	name := path.Base(dropbox.NormalizePath(remotePath))
	if name == "." || name == "/" || name == "" {
		name = "dropbox"
	}

	if zip && !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}

	return name
}

func runGet(ctx context.Context, cc *CLIContext, remotePath, localPath string, zip bool) error {
	if localPath == "" {
		localPath = defaultLocalName(remotePath, zip)
	}

	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	start := time.Now()

	var entry *dropbox.Entry

	switch {
	case localPath == stdoutArg && zip:
		entry, err = client.DownloadZip(ctx, remotePath, cc.Stdout)
	case localPath == stdoutArg:
		entry, err = client.Download(ctx, remotePath, cc.Stdout)
	case zip:
		entry, err = client.DownloadZipFile(ctx, remotePath, localPath)
	default:
		entry, err = client.DownloadFile(ctx, remotePath, localPath)
	}

	if err != nil {
		return fmt.Errorf("downloading %q: %w", remotePath, err)
	}

	cc.Logger.Debug("download complete",
		slog.String("path", entry.PathDisplay),
		slog.Duration("elapsed", time.Since(start)),
	)

	if localPath != stdoutArg {
		cc.Statusf("Downloaded %s -> %s\n", entry.PathDisplay, localPath)
	}

	return nil
}

// putOptions carries the commit flags of put.
type putOptions struct {
	Mode       dropbox.WriteMode
	AutoRename bool
	Mute       bool
}

func putOptionsFromFlags(cmd *cobra.Command) (putOptions, error) {
	overwrite, _ := cmd.Flags().GetBool("overwrite")
	rev, _ := cmd.Flags().GetString("rev")

	opts := putOptions{Mode: dropbox.WriteModeAdd}
	opts.AutoRename, _ = cmd.Flags().GetBool("autorename")
	opts.Mute, _ = cmd.Flags().GetBool("mute")

	switch {
	case overwrite && rev != "":
		return putOptions{}, errors.New("--overwrite and --rev are mutually exclusive")
	case overwrite:
		opts.Mode = dropbox.WriteModeOverwrite
	case rev != "":
		opts.Mode = dropbox.WriteModeUpdate(rev)
	}

	return opts, nil
}

// remoteTarget resolves the upload destination. An empty remote or one
// ending in "/" receives the local file name.
func remoteTarget(localPath, remotePath string) string {
	name := filepath.Base(localPath)

	switch {
	case remotePath == "":
		return "/" + name
	case strings.HasSuffix(remotePath, "/"):
		return remotePath + name
	default:
		return remotePath
	}
}

func runPut(ctx context.Context, cc *CLIContext, localPath, remotePath string, opts putOptions) error {
	target := remoteTarget(localPath, remotePath)

	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	start := time.Now()

	entry, err := client.UploadFile(ctx, dropbox.CommitInfo{
		Path:       target,
		Mode:       opts.Mode,
		AutoRename: opts.AutoRename,
		Mute:       opts.Mute,
	}, localPath)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	cc.Logger.Debug("upload complete",
		slog.String("path", entry.PathDisplay),
		slog.Int64("size", entry.Size),
		slog.Duration("elapsed", time.Since(start)),
	)
	cc.Statusf("Uploaded %s -> %s (%s)\n", localPath, entry.PathDisplay, formatSize(entry.Size))

	return nil
}

// searchJSON is the JSON schema for `search --json`.
type searchJSON struct {
	Matches []entryJSON `json:"matches"`
	More    bool        `json:"more"`
	Next    int         `json:"next_start"`
}

func runSearch(ctx context.Context, cc *CLIContext, opts dropbox.SearchOptions, match string) error {
	matches, err := entryMatcher(match)
	if err != nil {
		return err
	}

	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	res, err := client.Search(ctx, opts)
	if err != nil {
		return fmt.Errorf("searching %q: %w", opts.Query, err)
	}

	entries := make([]dropbox.Entry, 0, len(res.Matches))
	for i := range res.Matches {
		if matches(&res.Matches[i].Entry) {
			entries = append(entries, res.Matches[i].Entry)
		}
	}

	if cc.Flags.JSON {
		out := searchJSON{Matches: make([]entryJSON, 0, len(entries)), More: res.More, Next: res.Start}
		for i := range entries {
			out.Matches = append(out.Matches, toEntryJSON(&entries[i]))
		}

		return writeJSON(cc.Stdout, out)
	}

	if err := printEntries(cc, entries); err != nil {
		return err
	}

	if res.More {
		cc.Statusf("More results available: --start %d\n", res.Start)
	}

	return nil
}

func saveContent(cc *CLIContext, content *dropbox.Content, localPath string) error {
	if localPath == stdoutArg {
		_, err := cc.Stdout.Write(content.Data)
		return err
	}

	if err := os.WriteFile(localPath, content.Data, renderedFilePerms); err != nil {
		return &dropbox.FileError{Op: "write", Path: localPath, Err: err}
	}

	cc.Statusf("Saved %s (%s, %s) -> %s\n",
		content.Entry.PathDisplay, content.ContentType, formatSize(int64(len(content.Data))), localPath)

	return nil
}

func runSaveURL(ctx context.Context, cc *CLIContext, sourceURL, remotePath string, noWait bool) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	if noWait {
		job, err := client.SaveURL(ctx, remotePath, sourceURL)
		if err != nil {
			return fmt.Errorf("save-url: %w", err)
		}

		if job.Status == dropbox.SaveURLComplete && job.Entry != nil {
			return printEntry(cc, job.Entry)
		}

		fmt.Fprintln(cc.Stdout, job.JobID)

		return nil
	}

	cc.Statusf("Waiting for Dropbox to fetch %s...\n", sourceURL)

	entry, err := client.SaveURLAndWait(ctx, remotePath, sourceURL)
	if err != nil {
		return fmt.Errorf("save-url: %w", err)
	}

	return printEntry(cc, entry)
}

// copyRefJSON is the JSON schema for `copy-ref --json`.
type copyRefJSON struct {
	Reference string    `json:"copy_reference"`
	Expires   string    `json:"expires,omitempty"`
	Entry     entryJSON `json:"metadata"`
}

func runCopyRef(ctx context.Context, cc *CLIContext, remotePath string) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	ref, err := client.CopyReferenceGet(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("copy reference for %q: %w", remotePath, err)
	}

	expires := ""
	if !ref.Expires.IsZero() {
		expires = ref.Expires.UTC().Format(time.RFC3339)
	}

	if cc.Flags.JSON {
		return writeJSON(cc.Stdout, copyRefJSON{Reference: ref.Reference, Expires: expires, Entry: toEntryJSON(&ref.Entry)})
	}

	fmt.Fprintln(cc.Stdout, ref.Reference)

	if expires != "" {
		cc.Statusf("Expires %s\n", expires)
	}

	return nil
}
