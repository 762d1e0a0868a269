package vcs

import (
	"bytes"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cyberinferno/protohackers/utils"
)

var (
	ErrIllegalFileName = errors.New("illegal file name")
	ErrIllegalDirName  = errors.New("illegal dir name")
	ErrNoSuchFile      = errors.New("no such file")
	ErrNoSuchRevision  = errors.New("no such revision")
	ErrTextOnly        = errors.New("text files only")
)

const nameChars = "._-/"

// ValidFileName reports whether name is an absolute file path: a leading
// slash, no empty components and no trailing slash.
func ValidFileName(name string) bool {
	return ValidDirName(name) && !strings.HasSuffix(name, "/")
}

// ValidDirName reports whether name is an absolute directory path. A
// trailing slash is allowed.
func ValidDirName(name string) bool {
	return strings.HasPrefix(name, "/") &&
		!strings.Contains(name, "//") &&
		utils.ContainsOnly(name, nameChars)
}

// Entry is one line of a directory listing.
type Entry struct {
	Name     string
	Revision int // 0 for directories
}

func (e Entry) String() string {
	if e.Revision == 0 {
		return e.Name + "/ DIR"
	}

	return e.Name + " r" + strconv.Itoa(e.Revision)
}

// Repo keeps every revision of every file in memory. Revisions are numbered
// from 1. It is safe for concurrent use.
type Repo struct {
	mu    sync.RWMutex
	files map[string][][]byte
}

// NewRepo returns an empty repository.
func NewRepo() *Repo {
	return &Repo{files: make(map[string][][]byte)}
}

// Put stores data as the next revision of name and returns the latest
// revision number. Data identical to the latest revision is not stored
// again.
func (r *Repo) Put(name string, data []byte) (int, error) {
	if !ValidFileName(name) {
		return 0, ErrIllegalFileName
	}
	if !utils.IsText(data) {
		return 0, ErrTextOnly
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	revs := r.files[name]
	if n := len(revs); n > 0 && bytes.Equal(revs[n-1], data) {
		return n, nil
	}

	r.files[name] = append(revs, bytes.Clone(data))
	return len(revs) + 1, nil
}

// Get returns revision rev of name, or the latest revision when rev is 0.
func (r *Repo) Get(name string, rev int) ([]byte, error) {
	if !ValidFileName(name) {
		return nil, ErrIllegalFileName
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	revs, ok := r.files[name]
	if !ok {
		return nil, ErrNoSuchFile
	}
	if rev == 0 {
		rev = len(revs)
	}
	if rev < 1 || rev > len(revs) {
		return nil, ErrNoSuchRevision
	}

	return revs[rev-1], nil
}

// List returns the direct children of dir sorted by name. A child that is
// both a file and a directory is listed as a file. Unknown directories are
// empty.
func (r *Repo) List(dir string) ([]Entry, error) {
	if !ValidDirName(dir) {
		return nil, ErrIllegalDirName
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	r.mu.RLock()
	children := make(map[string]int)
	for name, revs := range r.files {
		rest, ok := strings.CutPrefix(name, dir)
		if !ok {
			continue
		}

		if child, _, nested := strings.Cut(rest, "/"); nested {
			if _, seen := children[child]; !seen {
				children[child] = 0
			}
		} else {
			children[rest] = len(revs)
		}
	}
	r.mu.RUnlock()

	entries := make([]Entry, 0, len(children))
	for name, rev := range children {
		entries = append(entries, Entry{Name: name, Revision: rev})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}
