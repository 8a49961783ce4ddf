package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"torrserve/internal/domain"
	"torrserve/internal/engine"
	"torrserve/internal/player"
	"torrserve/internal/schema"
)

var errHistoryDisabled = errors.New("play history needs MONGO_URI")

// historyStore is the play history as the commands use it.
type historyStore interface {
	Upsert(ctx context.Context, rec domain.PlayRecord) error
	Get(ctx context.Context, hash string, fileIndex int) (domain.PlayRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.PlayRecord, error)
}

func newVersionCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Probe the server and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := engine.New(rt.ec, rt.serverURL())
			v := h.Version(cmd.Context())
			if !v.Known() {
				return fmt.Errorf("%w: %s", domain.ErrUnavailable, rt.serverURL())
			}
			api := "v1"
			if v.IsV2() {
				api = "v2"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s API)\n", rt.serverURL(), v, api)
			return nil
		},
	}
}

func newAddCommand(rt *runtime) *cobra.Command {
	var (
		opts engine.AddOptions
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "add <magnet|url>",
		Short: "Add a magnet or .torrent link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h := engine.New(rt.ec, rt.serverURL())
			ok, err := h.Add(ctx, args[0], opts)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: add", engine.ErrRejected)
			}
			if wait {
				if _, err := h.WaitForData(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Hash())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title stored with the torrent")
	cmd.Flags().StringVar(&opts.Poster, "poster", "", "poster URL stored with the torrent")
	cmd.Flags().StringVar(&opts.Data, "data", "", "JSON metadata stored with the torrent")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for torrent metadata")
	return cmd
}

func newUploadCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.torrent>",
		Short: "Upload a .torrent file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			h := engine.New(rt.ec, rt.serverURL())
			ok, err := h.Upload(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: upload", engine.ErrRejected)
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Hash())
			return nil
		},
	}
}

func newListCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List torrents known to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h := engine.New(rt.ec, rt.serverURL())
			rows, err := h.List(cmd.Context())
			if err != nil {
				return err
			}
			printTorrents(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

// attached returns a handle bound to an existing torrent hash.
func attached(rt *runtime, hash string) (*engine.Handle, error) {
	h := engine.New(rt.ec, rt.serverURL())
	if err := h.Attach(hash); err != nil {
		return nil, err
	}
	return h, nil
}

func newStatCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <hash>",
		Short: "Show live statistics of a torrent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := attached(rt, args[0])
			if err != nil {
				return err
			}
			st, err := h.Stat(ctx)
			if err != nil {
				return err
			}
			buffer, err := h.BufferProgress(ctx)
			if err != nil {
				return err
			}
			printStat(cmd.OutOrStdout(), st, buffer)
			return nil
		},
	}
}

func newFilesCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "files <hash>",
		Short: "List the files of a torrent in server order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := attached(rt, args[0])
			if err != nil {
				return err
			}
			files, err := h.Files(cmd.Context())
			if err != nil {
				return err
			}
			printFiles(cmd.OutOrStdout(), files)
			return nil
		},
	}
}

func newPlayCommand(rt *runtime) *cobra.Command {
	var (
		index   int
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "play <magnet|url|file.torrent>",
		Short: "Add a torrent, preload a file and print its stream URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := engine.Open(ctx, rt.ec, rt.serverURL(), engine.Source{URI: args[0]})
			if err != nil {
				return err
			}

			fileIndex := h.IDToFilesIndex(ctx, index)
			if _, err := h.Start(ctx, fileIndex); err != nil {
				return err
			}

			out := cmd.ErrOrStderr()
			ok, err := player.Prebuffer(ctx, h, player.Config{
				OnProgress: func(p player.Progress) { printProgress(out, p) },
				MaxPolls:   int(timeout / player.DefaultInterval),
				Logger:     rt.logger,
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if !ok {
				rt.logger.Warn("prebuffer did not finish", slog.String("hash", h.Hash()))
			}

			playURL, err := h.PlayURL(ctx, fileIndex)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), playURL)
			rt.recordPlay(cmd, h, fileIndex, playURL)
			return nil
		},
	}
	cmd.Flags().IntVarP(&index, "index", "i", 0, "file index in torrent order")
	cmd.Flags().DurationVar(&timeout, "prebuffer-timeout", 5*time.Minute, "give up prebuffering after this long")
	return cmd
}

func (rt *runtime) recordPlay(cmd *cobra.Command, h *engine.Handle, fileIndex int, playURL string) {
	if rt.history == nil {
		return
	}
	ctx := cmd.Context()
	rec := domain.PlayRecord{
		Hash:      h.Hash(),
		FileIndex: fileIndex,
		PlayURL:   playURL,
	}
	if title, err := h.Title(ctx); err == nil {
		rec.Title = title
	}
	if poster, err := h.Poster(ctx); err == nil {
		rec.Poster = poster
	}
	if fs, err := h.FileStat(ctx, fileIndex); err == nil {
		rec.FilePath = schema.String(fs, "Name", "")
	}
	if err := rt.history.Upsert(ctx, rec); err != nil {
		rt.logger.Warn("play history write failed", slog.String("hash", rec.Hash), slog.String("error", err.Error()))
	}
}

func newDropCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <hash>",
		Short: "Stop a torrent without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := attached(rt, args[0])
			if err != nil {
				return err
			}
			return h.Drop(cmd.Context())
		},
	}
}

func newRemoveCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "rem <hash>",
		Aliases: []string{"rm"},
		Short:   "Remove a torrent from the server",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := attached(rt, args[0])
			if err != nil {
				return err
			}
			return h.Remove(cmd.Context())
		},
	}
}

func newHistoryCommand(rt *runtime) *cobra.Command {
	var (
		limit int
		hash  string
		index int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently played files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.history == nil {
				return errHistoryDisabled
			}
			ctx := cmd.Context()
			if hash != "" {
				rec, err := rt.history.Get(ctx, hash, index)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), []domain.PlayRecord{rec})
				return nil
			}
			records, err := rt.history.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")
	cmd.Flags().StringVar(&hash, "hash", "", "show the entry of one torrent")
	cmd.Flags().IntVarP(&index, "index", "i", 0, "file index for --hash")
	return cmd
}
