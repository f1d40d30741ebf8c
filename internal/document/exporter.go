package document

import (
	"bytes"
	"context"
	"io"
	"time"

	"itinera/internal/metrics"
	"itinera/internal/models"

	"github.com/rs/zerolog"
)

// Exporter renders itineraries into downloadable formats. Each call builds
// the document model from scratch.
type Exporter struct {
	pdf    *PDFRenderer
	raster Rasterizer
	logger *zerolog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. raster may be nil, then PDFs are always
// drawn natively.
func NewExporter(images ImageSource, raster Rasterizer, logger *zerolog.Logger) *Exporter {
	l := logger.With().Str("component", "exporter").Logger()
	return &Exporter{
		pdf:    NewPDFRenderer(images, logger),
		raster: raster,
		logger: &l,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (e *Exporter) build(it *models.Itinerary, opts Options) *Document {
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = e.now()
	}
	return Build(it, opts)
}

func (e *Exporter) HTML(w io.Writer, it *models.Itinerary, opts Options) error {
	defer observe("html", time.Now())
	return RenderHTML(w, e.build(it, opts))
}

// PDF tries the raster pipeline first when a rasterizer is configured and
// falls back to the native renderer on any raster failure.
func (e *Exporter) PDF(ctx context.Context, w io.Writer, it *models.Itinerary, opts Options) error {
	doc := e.build(it, opts)

	if e.raster != nil {
		start := time.Now()
		var buf bytes.Buffer
		err := e.rasterPDF(ctx, &buf, doc)
		if err == nil {
			observe("pdf_raster", start)
			_, err = buf.WriteTo(w)
			return err
		}
		e.logger.Warn().Err(err).Str("itinerary_id", it.ID).Msg("Raster export failed, falling back to native pdf")
	}

	defer observe("pdf", time.Now())
	return e.pdf.Render(ctx, w, doc)
}

func (e *Exporter) rasterPDF(ctx context.Context, w io.Writer, doc *Document) error {
	var page bytes.Buffer
	if err := RenderHTML(&page, doc); err != nil {
		return err
	}
	img, err := e.raster.Rasterize(ctx, page.Bytes())
	if err != nil {
		return err
	}
	return WriteRasterPDF(w, img, doc.Title)
}

func (e *Exporter) Dashboard(w io.Writer, items []*models.Itinerary) error {
	defer observe("xlsx", time.Now())
	return WriteDashboardXLSX(w, items, models.ComputeStats(items), e.now())
}

func (e *Exporter) QR(link string) ([]byte, error) {
	defer observe("qr", time.Now())
	return ShareQR(link, qrSize)
}

func observe(format string, start time.Time) {
	metrics.ObserveExport(format, time.Since(start).Seconds())
}
