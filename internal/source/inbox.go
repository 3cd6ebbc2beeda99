package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Subdirectories of an inbox that receive handled batches.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
)

// Inbox is a directory that scrapers drop batch files into.
type Inbox struct {
	dir string
}

// NewInbox returns an Inbox rooted at dir.
func NewInbox(dir string) *Inbox {
	return &Inbox{dir: dir}
}

// Dir returns the inbox directory.
func (in *Inbox) Dir() string { return in.dir }

// Pending lists batch files waiting in the inbox, oldest name first.
// Subdirectories are not scanned. A missing inbox is created.
func (in *Inbox) Pending() ([]string, error) {
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !e.Type().IsRegular() || !IsBatchFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(in.dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// MarkProcessed moves a batch into processed/.
func (in *Inbox) MarkProcessed(path string) (string, error) {
	return in.move(path, ProcessedDir)
}

// MarkFailed moves a batch into failed/.
func (in *Inbox) MarkFailed(path string) (string, error) {
	return in.move(path, FailedDir)
}

func (in *Inbox) move(path, sub string) (string, error) {
	dst := filepath.Join(in.dir, sub)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", sub, err)
	}
	target := filepath.Join(dst, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(target)
		base := target[:len(target)-len(ext)]
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s.%d%s", base, i, ext)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				target = candidate
				break
			}
		}
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("move %s to %s: %w", filepath.Base(path), sub, err)
	}
	return target, nil
}
