package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"plantwatch/internal/frame"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true}

// Directory replays the images of a folder in name order, wrapping around at the end.
type Directory struct {
	dir    string
	files  []string
	logger *slog.Logger

	mu   sync.Mutex
	next int
	seq  uint64
}

func NewDirectory(dir string, logger *slog.Logger) (*Directory, error) {
	files, err := ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	if logger != nil {
		logger.Info("directory source ready", "dir", dir, "images", len(files))
	}
	return &Directory{dir: dir, files: files, logger: logger}, nil
}

// ListImages returns the image files directly inside dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	if dir == "" {
		return nil, errors.New("source path is empty")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (d *Directory) Name() string { return "directory:" + d.dir }

func (d *Directory) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, frame.NewError("read", frame.ErrReadTimeout)
	}
	d.mu.Lock()
	path := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	f, err := ReadImage(path, seq, d.Name())
	if err != nil && d.logger != nil {
		d.logger.Warn("image decode failed", "path", path, "error", err)
	}
	return f, err
}

func (d *Directory) Close() error { return nil }

// ReadImage decodes a single image file as BGR.
func ReadImage(path string, seq uint64, source string) (*frame.Frame, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	defer m.Close()
	if m.Empty() {
		return nil, frame.NewError("decode", fmt.Errorf("%s: %w", path, frame.ErrNoFrame))
	}
	return fromMat(m, seq, source)
}
