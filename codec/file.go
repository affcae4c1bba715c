package codec

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"mime"
	"os"
	"path/filepath"
	"time"
)

// File is a named blob whose content travels as a stream. A decoded File
// fetches its content from the peer the first time it is opened.
type File struct {
	Name         string
	Size         int64
	LastModified time.Time
	Type         string

	open Stream
}

// NewFile returns a File backed by data. The MIME type is guessed from the
// name's extension.
func NewFile(name string, data []byte) *File {
	return &File{
		Name:         name,
		Size:         int64(len(data)),
		LastModified: time.Now(),
		Type:         mime.TypeByExtension(filepath.Ext(name)),
		open: func() (io.ReadCloser, error) {
			return ioutil.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NewStreamFile returns a File whose content is produced by open.
func NewStreamFile(name string, mimeType string, size int64, open Stream) *File {
	return &File{
		Name:         name,
		Size:         size,
		LastModified: time.Now(),
		Type:         mimeType,
		open:         open,
	}
}

// OpenFile returns a File backed by the file at path. The file is opened
// lazily.
func OpenFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:         info.Name(),
		Size:         info.Size(),
		LastModified: info.ModTime(),
		Type:         mime.TypeByExtension(filepath.Ext(path)),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Open returns a reader for the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, ErrNoStream
	}
	return f.open()
}

// ReadAll reads the whole file content.
func (f *File) ReadAll() ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ioutil.ReadAll(r)
}

type fileMeta struct {
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"lastModified"`
	Type         string `json:"type"`
}

// FileHandler carries *File values as tagged references with a stream.
type FileHandler struct{}

func (FileHandler) Test(v interface{}) bool {
	_, ok := v.(*File)
	return ok
}

func (FileHandler) Encode(v interface{}) (interface{}, error) {
	f := v.(*File)
	var modified int64
	if !f.LastModified.IsZero() {
		modified = f.LastModified.UnixNano() / int64(time.Millisecond)
	}
	return fileMeta{
		Name:         f.Name,
		Size:         f.Size,
		LastModified: modified,
		Type:         f.Type,
	}, nil
}

func (FileHandler) StreamSource(v interface{}) (Stream, error) {
	return v.(*File).open, nil
}

func (FileHandler) Decode(encoded json.RawMessage, extra Extra) (interface{}, error) {
	var meta fileMeta
	if err := json.Unmarshal(encoded, &meta); err != nil {
		return nil, err
	}
	f := &File{
		Name: meta.Name,
		Size: meta.Size,
		Type: meta.Type,
		open: extra.OpenStream,
	}
	if meta.LastModified != 0 {
		f.LastModified = time.Unix(0, meta.LastModified*int64(time.Millisecond))
	}
	if f.open == nil && extra.Buffer != nil {
		buf := extra.Buffer
		f.open = func() (io.ReadCloser, error) {
			return ioutil.NopCloser(bytes.NewReader(buf)), nil
		}
	}
	if open := f.open; open != nil && f.Size >= 0 {
		size := f.Size
		f.open = func() (io.ReadCloser, error) {
			r, err := open()
			if err != nil {
				return nil, err
			}
			return &sizedReader{ReadCloser: r, want: size}, nil
		}
	}
	return f, nil
}

// sizedReader fails a read that ends before, or runs past, the size the
// sender announced. A negative size is unknown and isn't checked.
type sizedReader struct {
	io.ReadCloser
	want int64
	got  int64
}

func (r *sizedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.got += int64(n)
	if r.got > r.want {
		return n, SizeError{Want: r.want, Got: r.got}
	}
	if err == io.EOF && r.got < r.want {
		return n, SizeError{Want: r.want, Got: r.got}
	}
	return n, err
}
