package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/J2S-Just-Simple-Solutions/dropbox-client/internal/dropbox"
)

// longpollJitter is the extra delay Dropbox may add on top of the
// requested longpoll timeout.
const longpollJitter = 90 * time.Second

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Print changes under a folder as they happen",
		Long: `Watch a folder and print every change until interrupted.

Changes are detected with list_folder/longpoll, so no polling traffic is
sent while nothing changes. With --json each change is one JSON object per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := cliContextFrom(cmd.Context())
			recursive, _ := cmd.Flags().GetBool("recursive")

			return runWatch(cmd.Context(), cc, argOr(args, 0, ""), recursive)
		},
	}

	cmd.Flags().BoolP("recursive", "r", false, "include changes in subfolders")

	return cmd
}

// watcher holds the two clients of a watch: longpoll needs a longer header
// timeout than the calls that fetch the changes.
type watcher struct {
	cc     *CLIContext
	client *dropbox.Client
	poller *dropbox.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

func runWatch(ctx context.Context, cc *CLIContext, remotePath string, recursive bool) error {
	client, err := cc.newClient(ctx)
	if err != nil {
		return err
	}

	poller, err := cc.newClientWithTimeout(ctx, cc.Cfg.LongpollTimeout+longpollJitter+cc.Cfg.DataTimeout)
	if err != nil {
		return err
	}

	w := &watcher{cc: cc, client: client, poller: poller, sleep: sleepCtx}

	return w.run(ctx, remotePath, recursive)
}

func (w *watcher) run(ctx context.Context, remotePath string, recursive bool) error {
	// The initial listing only establishes the cursor.
	_, cursor, err := w.client.ListFolderAll(ctx, remotePath, recursive)
	if err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	w.cc.Statusf("Watching %s (Ctrl-C to stop)\n", dropbox.NormalizePath(remotePath))

	for {
		res, err := w.poller.ListFolderLongpoll(ctx, cursor, w.cc.Cfg.LongpollTimeout)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			return fmt.Errorf("waiting for changes: %w", err)
		}

		if res.Changes {
			if cursor, err = w.drain(ctx, cursor); err != nil {
				if ctx.Err() != nil {
					return nil
				}

				return err
			}
		}

		if res.Backoff > 0 {
			w.cc.Logger.Debug("longpoll backoff", slog.Int("seconds", res.Backoff))

			if err := w.sleep(ctx, time.Duration(res.Backoff)*time.Second); err != nil {
				return nil
			}
		}
	}
}

// drain fetches every page of changes after cursor and returns the new cursor.
func (w *watcher) drain(ctx context.Context, cursor string) (string, error) {
	for {
		page, err := w.client.ListFolderContinue(ctx, cursor)
		if err != nil {
			return cursor, fmt.Errorf("fetching changes: %w", err)
		}

		for i := range page.Entries {
			if err := w.printChange(&page.Entries[i]); err != nil {
				return cursor, err
			}
		}

		cursor = page.Cursor

		if !page.HasMore {
			return cursor, nil
		}
	}
}

func (w *watcher) printChange(e *dropbox.Entry) error {
	if w.cc.Flags.JSON {
		// One object per line, unlike the indented writeJSON.
		data, err := json.Marshal(toEntryJSON(e))
		if err != nil {
			return fmt.Errorf("encoding change: %w", err)
		}

		_, err = fmt.Fprintln(w.cc.Stdout, string(data))

		return err
	}

	var err error

	switch e.Kind {
	case dropbox.EntryDeleted:
		_, err = fmt.Fprintf(w.cc.Stdout, "deleted  %s\n", e.PathDisplay)
	case dropbox.EntryFolder:
		_, err = fmt.Fprintf(w.cc.Stdout, "folder   %s\n", e.PathDisplay)
	default:
		_, err = fmt.Fprintf(w.cc.Stdout, "file     %s (%s)\n", e.PathDisplay, formatSize(e.Size))
	}

	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
