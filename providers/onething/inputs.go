package onething

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// URLToInputImage creates an InputImage from a URL.
func URLToInputImage(url string) InputImage {
	return InputImage{URL: url}
}

// B64ToInputImage creates an InputImage from base64 data, which may carry a
// data URL prefix.
func B64ToInputImage(b64 string) InputImage {
	return InputImage{B64JSON: b64}
}

// FileToInputImage reads an image file into a base64 data URL. The content
// type is taken from the file extension.
func FileToInputImage(path string) (InputImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InputImage{}, fmt.Errorf("read input image: %w", err)
	}
	return InputImage{B64JSON: dataURL(imageContentType(path), data)}, nil
}

// ReaderToInputImage reads r fully into a base64 data URL.
func ReaderToInputImage(r io.Reader, contentType string) (InputImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return InputImage{}, fmt.Errorf("read input image: %w", err)
	}
	return InputImage{B64JSON: dataURL(contentType, data)}, nil
}

// URLToInputVideo creates an InputVideo from a URL.
func URLToInputVideo(url string) InputVideo {
	return InputVideo{URL: url}
}

func dataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func imageContentType(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
