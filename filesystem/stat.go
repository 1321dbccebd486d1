package filesystem

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-json"
)

const (
	mimeDirectory = "inode/directory"
	mimeUnknown   = "application/octet-stream"
)

// Entry describes a single file or directory in a listing.
type Entry struct {
	Name     string
	IsDir    bool
	Size     int64
	ModTime  time.Time
	Path     string
	Mimetype string
}

type entryJSON struct {
	Name  string  `json:"name"`
	IsDir bool    `json:"is_dir"`
	Size  int64   `json:"size"`
	MTime float64 `json:"mtime"`
	Path  string  `json:"path"`
	Mime  string  `json:"mime"`
}

// MarshalJSON encodes the modification time as fractional seconds since the
// epoch, which is what browser clients of the listing endpoint expect.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Name:  e.Name,
		IsDir: e.IsDir,
		Size:  e.Size,
		MTime: float64(e.ModTime.UnixNano()) / float64(time.Second),
		Path:  e.Path,
		Mime:  e.Mimetype,
	})
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var v entryJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	sec, frac := math.Modf(v.MTime)
	*e = Entry{
		Name:     v.Name,
		IsDir:    v.IsDir,
		Size:     v.Size,
		ModTime:  time.Unix(int64(sec), int64(frac*float64(time.Second))),
		Path:     v.Path,
		Mimetype: v.Mime,
	}
	return nil
}

// Listing is the result of listing a path. Exists is false, with no items,
// when nothing is present at the path; that is a normal result, not an error.
type Listing struct {
	Path   string  `json:"path"`
	Parent string  `json:"parent"`
	Exists bool    `json:"exists"`
	Items  []Entry `json:"items"`
}

// newEntry builds an Entry from stat information. Directories always report
// a size of zero.
func newEntry(rel string, st os.FileInfo) Entry {
	e := Entry{
		Name:     st.Name(),
		IsDir:    st.IsDir(),
		ModTime:  st.ModTime(),
		Path:     rel,
		Mimetype: mimeDirectory,
	}
	if !st.IsDir() {
		e.Size = st.Size()
		e.Mimetype = mimeUnknown
	}
	return e
}

// detectMimetype sniffs the content type from the head of r.
func detectMimetype(r io.Reader) string {
	m, err := mimetype.DetectReader(r)
	if err != nil || m == nil {
		return mimeUnknown
	}
	return m.String()
}
