package fs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker finds label images under a directory using doublestar include
// and exclude patterns matched against slash-separated relative paths.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

// LabelImage is an image file found by the walker.
type LabelImage struct {
	Path    string
	RelPath string
	ModTime int64
	Size    int64
}

// Walk returns matching files sorted by relative path.
func (w *Walker) Walk(root string) ([]LabelImage, error) {
	var files []LabelImage

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if info.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Size() == 0 {
			return nil
		}
		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			files = append(files, LabelImage{
				Path:    path,
				RelPath: relPath,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}

		return nil
	})

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, err
}

func (w *Walker) shouldInclude(path string) bool {
	return matchAny(w.includes, path)
}

func (w *Walker) shouldExclude(path string) bool {
	return matchAny(w.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

var mimeTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	ext := filepath.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEType guesses an image MIME type from a file name, defaulting to
// image/jpeg.
func MIMEType(name string) string {
	if mt, ok := mimeTypes[Extension(name)]; ok {
		return mt
	}
	return "image/jpeg"
}

// AllowedFile reports whether name has one of the allowed extensions.
func AllowedFile(name string, allowed []string) bool {
	ext := Extension(name)
	if ext == "" || !strings.Contains(name, ".") {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// ReadImage reads an image file and guesses its MIME type.
func ReadImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, MIMEType(path), nil
}
