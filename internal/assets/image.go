package assets

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// pdfDPI is the resolution PDF pages are rasterized at.
const pdfDPI = 150

func decodeImageFile(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return renderPDFPage(path, 0)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func renderPDFPage(path string, page int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range, document has %d", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, pdfDPI)
	if err != nil {
		return nil, err
	}
	return img, nil
}
