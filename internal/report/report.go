// Package report renders duplicate-group results for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mcande21/audio-duplicates/pkg/audiodup/index"
)

// Group is one rendered duplicate group.
type Group struct {
	AvgSimilarity float64 `json:"avg_similarity"`
	Files         []File  `json:"files"`
	FileIDs       []int   `json:"file_ids"`
	Reclaimable   int64   `json:"reclaimable_bytes"`
}

// File is one member of a group.
type File struct {
	ID        int     `json:"id"`
	Path      string  `json:"path"`
	Duration  float64 `json:"duration_s"`
	SizeBytes int64   `json:"size_bytes"`
}

// Report is the full scan outcome.
type Report struct {
	Root         string    `json:"root"`
	FilesScanned int       `json:"files_scanned"`
	Groups       []Group   `json:"groups"`
	Reclaimable  int64     `json:"reclaimable_bytes"`
	Elapsed      float64   `json:"elapsed_s"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Build resolves group members against the index and file system.
func Build(ix *index.Index, groups []index.DuplicateGroup, root string, filesScanned int, elapsed time.Duration) Report {
	r := Report{
		Root:         root,
		FilesScanned: filesScanned,
		GeneratedAt:  time.Now(),
		Elapsed:      elapsed.Seconds(),
	}

	for _, g := range groups {
		group := Group{AvgSimilarity: g.AvgSimilarity, FileIDs: g.FileIDs}
		for _, id := range g.FileIDs {
			entry, ok := ix.GetFile(id)
			if !ok {
				continue
			}
			f := File{ID: id, Path: entry.Path, Duration: entry.Fingerprint.Duration()}
			if info, err := os.Stat(entry.Path); err == nil {
				f.SizeBytes = info.Size()
			}
			group.Files = append(group.Files, f)
		}
		// Keeping one copy frees the rest.
		if len(group.Files) > 1 {
			for _, f := range group.Files[1:] {
				group.Reclaimable += f.SizeBytes
			}
		}
		r.Reclaimable += group.Reclaimable
		r.Groups = append(r.Groups, group)
	}
	return r
}

// WriteText renders the report for terminals.
func (r Report) WriteText(w io.Writer) error {
	if len(r.Groups) == 0 {
		_, err := fmt.Fprintf(w, "No duplicates found among %d files.\n", r.FilesScanned)
		return err
	}

	fmt.Fprintf(w, "Found %d duplicate group(s) among %d files (%.1fs):\n\n",
		len(r.Groups), r.FilesScanned, r.Elapsed)

	for i, g := range r.Groups {
		fmt.Fprintf(w, "Group %d — %.1f%% similar\n", i+1, g.AvgSimilarity*100)
		for _, f := range g.Files {
			fmt.Fprintf(w, "  [%d] %s (%s, %s)\n",
				f.ID, f.Path, formatDuration(f.Duration), humanize.Bytes(uint64(f.SizeBytes)))
		}
		if g.Reclaimable > 0 {
			fmt.Fprintf(w, "  reclaimable: %s\n", humanize.Bytes(uint64(g.Reclaimable)))
		}
		fmt.Fprintln(w)
	}

	if r.Reclaimable > 0 {
		fmt.Fprintf(w, "Total reclaimable space: %s\n", humanize.Bytes(uint64(r.Reclaimable)))
	}
	return nil
}

// WriteJSON renders the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
