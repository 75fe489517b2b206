package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/autoredeem/pkg/keeper"
)

// NopJournal drops every line
type NopJournal struct{}

func NewNopJournal() *NopJournal      { return &NopJournal{} }
func (j *NopJournal) Append(_ string) {}
func (j *NopJournal) Close() error    { return nil }

// FileJournal appends one line per published batch to a file
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fmt.Fprintln(j.f, line)
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ keeper.Journal = (*NopJournal)(nil)
var _ keeper.Journal = (*FileJournal)(nil)
