package token

import (
	"sync"

	mtoken "modernc.org/token"
)

// File is one source buffer. Tokens point back at the file they came from
// for diagnostics and line information.
type File struct {
	Name     string
	FileNo   int
	Contents string

	// Set by #line.
	DisplayName string
	LineDelta   int

	once sync.Once
	pos  *mtoken.File
}

func NewFile(name string, fileNo int, contents string) *File {
	return &File{Name: name, FileNo: fileNo, Contents: contents, DisplayName: name}
}

// Position maps a byte offset to a line and column.
func (f *File) Position(offset int) mtoken.Position {
	f.once.Do(func() {
		f.pos = mtoken.NewFile(f.Name, len(f.Contents))
		f.pos.SetLinesForContent([]byte(f.Contents))
	})
	if offset < 0 {
		offset = 0
	}
	if offset > len(f.Contents) {
		offset = len(f.Contents)
	}
	return f.pos.PositionFor(f.pos.Pos(offset), false)
}

// Line returns the text of the physical line containing offset, without
// the trailing newline, and the offset at which that line starts.
func (f *File) Line(offset int) (string, int) {
	if offset > len(f.Contents) {
		offset = len(f.Contents)
	}
	start := offset
	for start > 0 && f.Contents[start-1] != '\n' {
		start--
	}
	end := offset
	for end < len(f.Contents) && f.Contents[end] != '\n' {
		end++
	}
	return f.Contents[start:end], start
}

// Registry records every file read during a compilation in the order it was
// opened. File numbers start at 1, matching assembler .file numbering.
type Registry struct {
	files []*File
}

func (r *Registry) Add(name, contents string) *File {
	f := NewFile(name, len(r.files)+1, contents)
	r.files = append(r.files, f)
	return f
}

func (r *Registry) Files() []*File { return r.files }
