package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"torrserve/internal/domain"
	"torrserve/internal/player"
	"torrserve/internal/schema"
)

func bytesOf(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func speedOf(st schema.Map) string {
	v, err := st.Get("DownloadSpeed")
	if err != nil {
		return "-"
	}
	f, ok := schema.AsFloat64(v)
	if !ok {
		return "-"
	}
	return bytesOf(int64(f)) + "/s"
}

func printTorrents(w io.Writer, rows []schema.Map) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HASH\tSIZE\tSTATUS\tNAME")
	for _, row := range rows {
		name := schema.String(row, "title", "")
		if name == "" {
			name = schema.String(row, "Name", "")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			schema.String(row, "Hash", ""),
			bytesOf(schema.Int64(row, "Length", 0)),
			schema.String(row, "TorrentStatusString", "-"),
			name,
		)
	}
	_ = tw.Flush()
}

func printStat(w io.Writer, st schema.Map, buffer int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", schema.String(st, "TorrentStatusString", "-"))
	fmt.Fprintf(tw, "Loaded:\t%s of %s\n", bytesOf(schema.Int64(st, "LoadedSize", 0)), bytesOf(schema.Int64(st, "TorrentSize", 0)))
	fmt.Fprintf(tw, "Preload:\t%s of %s (%d%%)\n", bytesOf(schema.Int64(st, "PreloadedBytes", 0)), bytesOf(schema.Int64(st, "PreloadSize", 0)), buffer)
	fmt.Fprintf(tw, "Download:\t%s\n", speedOf(st))
	fmt.Fprintf(tw, "Peers:\tS:%d A:%d T:%d\n",
		schema.Int64(st, "ConnectedSeeders", 0),
		schema.Int64(st, "ActivePeers", 0),
		schema.Int64(st, "TotalPeers", 0),
	)
	_ = tw.Flush()
}

func printFiles(w io.Writer, files []domain.FileItem) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tSIZE\tPATH")
	for i, f := range files {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", i, f.ID, bytesOf(f.Size), f.Path)
	}
	_ = tw.Flush()
}

func printProgress(w io.Writer, p player.Progress) {
	fmt.Fprintf(w, "\rS:%d A:%d T:%d  D: %s/s [%s/%s] %3d%%",
		p.Seeders, p.ActivePeers, p.TotalPeers,
		bytesOf(p.DownloadSpeed), bytesOf(p.Preloaded), bytesOf(p.PreloadSize), p.Percent)
}

func printHistory(w io.Writer, records []domain.PlayRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tHASH\t#\tTITLE\tFILE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", humanize.Time(r.UpdatedAt), r.Hash, r.FileIndex, r.Title, r.FilePath)
	}
	_ = tw.Flush()
}
