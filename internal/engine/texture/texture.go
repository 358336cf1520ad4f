// Package texture decodes model textures into RGBA images ready for upload.
package texture

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/Faultbox/midgard-skel/internal/assets"
	"github.com/Faultbox/midgard-skel/pkg/formats"
)

// Options controls post-decode processing.
type Options struct {
	FlipY      bool // Flip rows so the first row is the bottom of the image
	MagentaKey bool // Make #FF00FF pixels transparent
}

// Decode decodes image data. The hint is a file name or MIME type; it is
// only needed for TGA, which has no signature.
func Decode(data []byte, hint string) (image.Image, error) {
	if isTGA(hint) {
		img, err := tga.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "decoding tga")
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding image %q", hint)
	}
	return img, nil
}

func isTGA(hint string) bool {
	h := strings.ToLower(hint)
	return strings.HasSuffix(h, ".tga") || h == "image/x-tga" || h == "image/tga"
}

// Load resolves a texture reference and returns the processed image.
// Embedded data is used as is; external textures are read from ref.Path
// first and then looked up by URI under the manager's search roots.
func Load(ref formats.TextureRef, m *assets.Manager, opts Options) (*image.RGBA, error) {
	data, hint, err := read(ref, m)
	if err != nil {
		return nil, err
	}

	img, err := Decode(data, hint)
	if err != nil {
		return nil, err
	}

	// Only BMP and TGA textures carry the magenta key.
	ext := strings.ToLower(filepath.Ext(hint))
	opts.MagentaKey = opts.MagentaKey && (ext == ".bmp" || ext == ".tga")

	return Prepare(img, opts), nil
}

func read(ref formats.TextureRef, m *assets.Manager) ([]byte, string, error) {
	if len(ref.Data) > 0 {
		hint := ref.MimeType
		if hint == "" {
			hint = ref.URI
		}
		return ref.Data, hint, nil
	}
	if m == nil {
		m = assets.NewManager()
	}

	if ref.Path != "" {
		data, err := m.ReadFile(ref.Path)
		if err == nil {
			return data, ref.Path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", errors.Wrapf(err, "reading texture %s", ref.Path)
		}
	}
	if ref.URI == "" {
		return nil, "", errors.Wrap(fs.ErrNotExist, "texture has no data or location")
	}

	data, err := m.Load(ref.URI)
	if err != nil {
		return nil, "", err
	}
	return data, ref.URI, nil
}

// Prepare converts img to RGBA and applies the requested processing.
func Prepare(img image.Image, opts Options) *image.RGBA {
	rgba := ToRGBA(img)
	if opts.MagentaKey {
		ApplyMagentaKey(rgba)
	}
	if opts.FlipY {
		FlipVertical(rgba)
	}
	return rgba
}

// ToRGBA converts any image.Image to a zero-origin *image.RGBA.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// FlipVertical mirrors the image rows in place.
func FlipVertical(img *image.RGBA) {
	b := img.Bounds()
	row := make([]byte, b.Dx()*4)
	for top, bottom := b.Min.Y, b.Max.Y-1; top < bottom; top, bottom = top+1, bottom-1 {
		ti := img.PixOffset(b.Min.X, top)
		bi := img.PixOffset(b.Min.X, bottom)
		copy(row, img.Pix[ti:ti+len(row)])
		copy(img.Pix[ti:ti+len(row)], img.Pix[bi:bi+len(row)])
		copy(img.Pix[bi:bi+len(row)], row)
	}
}

// IsMagentaKey checks if an RGB color matches the magenta transparency key.
// Uses tolerance (R >= 250, G <= 10, B >= 250) to handle BMP decoding variations.
func IsMagentaKey(r, g, b uint8) bool {
	return r >= 250 && g <= 10 && b >= 250
}

// ApplyMagentaKey makes magenta pixels transparent black in place. RGB is
// cleared too so filtering does not bleed the key color.
func ApplyMagentaKey(img *image.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := img.PixOffset(x, y)
			if IsMagentaKey(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
				img.SetRGBA(x, y, color.RGBA{})
			}
		}
	}
}
