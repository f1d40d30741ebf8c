package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/phpdave11/gofpdf"
)

const (
	a4WidthMM  = 210.0
	a4HeightMM = 297.0
)

// Rasterizer turns the HTML preview into a single tall bitmap.
type Rasterizer interface {
	Rasterize(ctx context.Context, html []byte) (image.Image, error)
}

// HTTPRasterizer posts the page to a headless-browser screenshot service
// (multipart form, field "files", file index.html) and decodes the image it
// returns.
type HTTPRasterizer struct {
	url    string
	client *http.Client
}

func NewHTTPRasterizer(url string, timeout time.Duration) *HTTPRasterizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRasterizer{url: url, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPRasterizer) Rasterize(ctx context.Context, html []byte) (image.Image, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, fmt.Errorf("build rasterizer form: %w", err)
	}
	if _, err := part.Write(html); err != nil {
		return nil, fmt.Errorf("build rasterizer form: %w", err)
	}
	_ = mw.WriteField("format", "png")
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build rasterizer form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return nil, fmt.Errorf("build rasterizer request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rasterize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rasterize: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	return img, nil
}

// Band is a horizontal slice [Top, Bottom) of the source bitmap in pixels.
type Band struct {
	Top    int
	Bottom int
}

// Paginate splits totalHeight into page-sized bands until the remaining
// height is exhausted. There is always at least one band.
func Paginate(totalHeight, pageHeight int) []Band {
	if pageHeight <= 0 || totalHeight <= 0 {
		return []Band{{Top: 0, Bottom: max(totalHeight, 0)}}
	}

	pages := int(math.Ceil(float64(totalHeight) / float64(pageHeight)))
	bands := make([]Band, 0, pages)
	for top := 0; top < totalHeight; top += pageHeight {
		bands = append(bands, Band{Top: top, Bottom: min(top+pageHeight, totalHeight)})
	}
	return bands
}

// pageHeightPx is the A4 page height in source pixels when the bitmap is
// scaled to the page width.
func pageHeightPx(widthPx int) int {
	return int(math.Round(float64(widthPx) * a4HeightMM / a4WidthMM))
}

// WriteRasterPDF cuts the bitmap into A4 bands and places one band per page.
func WriteRasterPDF(w io.Writer, img image.Image, title string) error {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("raster pdf: empty bitmap")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("itinera", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	for i, band := range Paginate(b.Dy(), pageHeightPx(b.Dx())) {
		crop := imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y+band.Top, b.Max.X, b.Min.Y+band.Bottom))

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, crop, imaging.PNG); err != nil {
			return fmt.Errorf("encode page %d: %w", i+1, err)
		}

		name := fmt.Sprintf("page-%d", i+1)
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(name, opts, &buf)
		h := a4WidthMM * float64(band.Bottom-band.Top) / float64(b.Dx())
		pdf.ImageOptions(name, 0, 0, a4WidthMM, h, false, opts, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render raster pdf: %w", err)
	}
	return nil
}
