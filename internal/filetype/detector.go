package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the coarse class of an upload.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindImage:
		return "image"
	}
	return "unknown"
}

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect sniffs the payload with magic bytes; the file name is only used for logging.
func (d *Detector) Detect(name string, data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	// mimetype appends parameters for text types ("text/plain; charset=utf-8")
	if i := strings.Index(info.MIMEType, ";"); i >= 0 {
		info.MIMEType = strings.TrimSpace(info.MIMEType[:i])
	}
	d.classify(info)

	log.Debug().
		Str("mime", info.MIMEType).
		Str("ext", info.Extension).
		Str("file", filepath.Base(name)).
		Bool("supported", info.Supported).
		Msg("detected file type")
	return info
}

// classify maps MIME types onto the kinds the tools accept.
func (d *Detector) classify(info *FileTypeInfo) {
	switch info.MIMEType {
	case "application/pdf":
		info.Kind = KindPDF
		info.Supported = true
		info.Description = "PDF document"

	case "image/jpeg", "image/png":
		info.Kind = KindImage
		info.Supported = true
		info.Description = "Image file"

	// decoded and re-encoded as PNG before embedding
	case "image/gif", "image/bmp", "image/x-ms-bmp", "image/tiff", "image/webp":
		info.Kind = KindImage
		info.Supported = true
		info.Description = "Image file (converted)"

	default:
		info.Kind = KindUnknown
		info.Supported = false
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
}

// Require detects data and fails unless it is of kind want.
func (d *Detector) Require(name string, data []byte, want Kind) (*FileTypeInfo, error) {
	info := d.Detect(name, data)
	if !info.Supported || info.Kind != want {
		return info, fmt.Errorf("%s: expected %s, got %s", filepath.Base(name), want, info.MIMEType)
	}
	return info, nil
}
