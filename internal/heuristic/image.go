package heuristic

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io/fs"
	"path"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// LargeImageThreshold is the size above which an image is reported as large.
const LargeImageThreshold = 200 * 1024

// ErrNotImage is returned by InspectImage when the data is neither a
// decodable image nor carries EXIF metadata.
var ErrNotImage = errors.New("data is not a recognized image")

// IsLargeImage reports whether the image referenced by src is larger than
// LargeImageThreshold. Data URIs are decoded; other sources are looked up
// in fsys. Any decode or stat failure yields false.
func IsLargeImage(src string, fsys fs.FS) bool {
	if data, ok := DecodeDataURI(src); ok {
		return len(data) > LargeImageThreshold
	}

	name, ok := localPath(src)
	if !ok || fsys == nil {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Size() > LargeImageThreshold
}

// ImageBytes returns the bytes of a data URI or of a local image in fsys.
func ImageBytes(src string, fsys fs.FS) ([]byte, bool) {
	if data, ok := DecodeDataURI(src); ok {
		return data, true
	}
	name, ok := localPath(src)
	if !ok || fsys == nil {
		return nil, false
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, false
	}
	return data, true
}

// DecodeDataURI decodes a base64 data:image URI payload.
func DecodeDataURI(src string) ([]byte, bool) {
	if !strings.HasPrefix(src, "data:image") {
		return nil, false
	}
	header, payload, found := strings.Cut(src, ",")
	if !found || !strings.Contains(header, ";base64") {
		return nil, false
	}
	payload = strings.TrimSpace(payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(payload)
		if err != nil {
			return nil, false
		}
	}
	return data, true
}

// localPath converts an img src into an fs.FS path. Remote URLs and
// protocol-relative references are not local.
func localPath(src string) (string, bool) {
	if src == "" || strings.Contains(src, "://") || strings.HasPrefix(src, "//") || strings.HasPrefix(src, "data:") {
		return "", false
	}
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	name := path.Clean(strings.TrimPrefix(src, "/"))
	if !fs.ValidPath(name) || name == "." {
		return "", false
	}
	return name, true
}

// EXIFTag is one metadata entry found in an image.
type EXIFTag struct {
	Name  string
	Value string
}

// ImageInfo describes an inspected image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
	Size   int

	// EXIF holds the privacy-relevant EXIF tags, in file order.
	EXIF []EXIFTag
}

// HasEXIF reports whether privacy-relevant EXIF tags were found.
func (i ImageInfo) HasEXIF() bool {
	return len(i.EXIF) > 0
}

// sensitiveEXIFTags are tags that reveal location, device, or author.
var sensitiveEXIFTags = map[string]bool{
	"GPSLatitude":        true,
	"GPSLongitude":       true,
	"GPSLatitudeRef":     true,
	"GPSLongitudeRef":    true,
	"Make":               true,
	"Model":              true,
	"SerialNumber":       true,
	"CameraSerialNumber": true,
	"BodySerialNumber":   true,
	"LensSerialNumber":   true,
	"Software":           true,
	"Artist":             true,
	"Copyright":          true,
	"XPAuthor":           true,
	"HostComputer":       true,
	"DateTimeOriginal":   true,
}

// InspectImage reads the format and dimensions of an image and collects its
// privacy-relevant EXIF tags.
func InspectImage(data []byte) (ImageInfo, error) {
	info := ImageInfo{Size: len(data)}

	cfg, format, cfgErr := image.DecodeConfig(bytes.NewReader(data))
	if cfgErr == nil {
		info.Format = format
		info.Width = cfg.Width
		info.Height = cfg.Height
	}

	info.EXIF = extractEXIF(data)

	if cfgErr != nil && len(info.EXIF) == 0 {
		return info, ErrNotImage
	}
	return info, nil
}

func extractEXIF(data []byte) []EXIFTag {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return nil
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil
	}

	var tags []EXIFTag
	for _, entry := range entries {
		if sensitiveEXIFTags[entry.TagName] {
			tags = append(tags, EXIFTag{Name: entry.TagName, Value: entry.Formatted})
		}
	}
	return tags
}
