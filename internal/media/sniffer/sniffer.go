package sniffer

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeSVG  MediaType = "svg"
)

var (
	ErrUnknownType  = errors.New("unknown media type")
	ErrTypeMismatch = errors.New("declared content type does not match file contents")
)

const headSize = 512

type Result struct {
	Type MediaType
	MIME string
}

// Extension is the file extension stored with the attachment, without a dot.
func (r Result) Extension() string {
	if r.Type == TypeJPEG {
		return "jpg"
	}
	return string(r.Type)
}

// Raster reports whether the image can be decoded for thumbnails.
func (r Result) Raster() bool {
	return r.Type != TypeSVG && r.Type != ""
}

// Detect reads up to 512 bytes from r and returns them together with the
// detected type so the caller can replay them.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, headSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	switch {
	case len(head) == 0:
		return Result{}, ErrUnknownType
	case isJPEG(head):
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Type: TypeWEBP, MIME: "image/webp"}, nil
	case isSVG(head):
		return Result{Type: TypeSVG, MIME: "image/svg+xml"}, nil
	}
	return Result{}, ErrUnknownType
}

// CheckDeclared compares a client supplied Content-Type with the sniffed
// result. Empty and generic declarations are accepted.
func CheckDeclared(declared string, result Result) error {
	switch declared {
	case "", "application/octet-stream":
		return nil
	case result.MIME:
		return nil
	case "image/jpg", "image/pjpeg":
		if result.Type == TypeJPEG {
			return nil
		}
	}
	return ErrTypeMismatch
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func isPNG(head []byte) bool {
	return bytes.HasPrefix(head, pngMagic)
}

func isGIF(head []byte) bool {
	return bytes.HasPrefix(head, []byte("GIF87a")) || bytes.HasPrefix(head, []byte("GIF89a"))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

func isSVG(head []byte) bool {
	trimmed := strings.TrimSpace(string(head))
	if strings.HasPrefix(trimmed, "<svg") {
		return true
	}
	return strings.HasPrefix(trimmed, "<?xml") && strings.Contains(strings.ToLower(trimmed), "<svg")
}

func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
