package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/phpdave11/gofpdf"
	"github.com/rs/zerolog"
)

const (
	pageMargin   = 15.0
	contentWidth = a4WidthMM - 2*pageMargin
	lineHeight   = 6.0
)

// PDFRenderer draws the document directly with gofpdf.
type PDFRenderer struct {
	images ImageSource
	logger *zerolog.Logger
}

func NewPDFRenderer(images ImageSource, logger *zerolog.Logger) *PDFRenderer {
	l := logger.With().Str("component", "pdf_renderer").Logger()
	return &PDFRenderer{images: images, logger: &l}
}

func (r *PDFRenderer) Render(ctx context.Context, w io.Writer, doc *Document) error {
	var urls []string
	if doc.HeroImage != "" {
		urls = append(urls, doc.HeroImage)
	}
	for _, d := range doc.Days {
		urls = append(urls, d.Images...)
	}
	images := fetchAll(ctx, r.images, urls, r.logger)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("itinera", true)
	pdf.SetCreationDate(doc.GeneratedAt)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(148, 163, 184)
		pdf.CellFormat(0, 8, fmt.Sprintf("%s - page %d", tr(doc.Title), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r.hero(pdf, tr, doc, images)

	for _, s := range doc.Sections {
		r.section(pdf, tr, s)
	}

	if len(doc.Summary) > 0 {
		heading(pdf, tr, "Itinerary at a Glance")
		pdf.SetFont("Arial", "", 11)
		for _, line := range doc.Summary {
			pdf.MultiCell(0, lineHeight, tr(line), "", "L", false)
		}
		pdf.Ln(4)
	}

	for i, d := range doc.Days {
		// по два дня на страницу
		if i%2 == 0 {
			pdf.AddPage()
		}
		r.day(pdf, tr, d, images)
	}

	r.section(pdf, tr, doc.Consultant)
	r.qr(pdf, tr, doc.ShareURL)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func (r *PDFRenderer) hero(pdf *gofpdf.Fpdf, tr func(string) string, doc *Document, images map[string]image.Image) {
	if img, ok := images[doc.HeroImage]; ok {
		r.image(pdf, "hero", img)
	}

	pdf.SetFillColor(31, 41, 55)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 24)
	pdf.CellFormat(0, 16, tr(doc.Title), "", 1, "C", true, 0, "")
	pdf.SetFont("Arial", "", 13)
	pdf.CellFormat(0, 8, tr(doc.Subtitle), "", 1, "C", true, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5, tr(doc.Intro), "", "C", true)
	pdf.SetTextColor(31, 41, 55)
	pdf.Ln(6)
}

func (r *PDFRenderer) section(pdf *gofpdf.Fpdf, tr func(string) string, s Section) {
	if len(s.Fields) == 0 && len(s.Items) == 0 && s.Text == "" {
		return
	}
	heading(pdf, tr, s.Title)

	for _, f := range s.Fields {
		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(100, 116, 139)
		pdf.CellFormat(45, lineHeight, tr(f.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(31, 41, 55)
		pdf.MultiCell(0, lineHeight, tr(f.Value), "", "L", false)
	}
	if s.Text != "" {
		pdf.SetFont("Arial", "B", 11)
		pdf.MultiCell(0, lineHeight, tr(s.Text), "", "L", false)
	}
	bullets(pdf, tr, s.Items)
	pdf.Ln(4)
}

func (r *PDFRenderer) day(pdf *gofpdf.Fpdf, tr func(string) string, d DayBlock, images map[string]image.Image) {
	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(31, 41, 55)
	pdf.CellFormat(40, 12, fmt.Sprintf("Day %d", d.Number), "", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(100, 116, 139)
	place := d.City
	if d.Date != "" {
		place += "  " + d.Date
	}
	pdf.CellFormat(0, 12, tr(place), "", 1, "R", false, 0, "")

	pdf.SetTextColor(31, 41, 55)
	pdf.SetFont("Arial", "B", 14)
	pdf.MultiCell(0, 8, tr(d.Title), "", "L", false)
	if d.Description != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(d.Description), "", "L", false)
	}
	pdf.Ln(2)

	if len(d.Activities) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, lineHeight, "Activities", "", 1, "L", false, 0, "")
		bullets(pdf, tr, d.Activities)
	}

	pdf.SetFont("Arial", "", 10)
	if d.Meals != "" {
		pdf.MultiCell(0, lineHeight, tr("Meals: "+d.Meals), "", "L", false)
	}
	if d.Stay != "" {
		pdf.MultiCell(0, lineHeight, tr("Stay: "+d.Stay), "", "L", false)
	}

	for i, u := range d.Images {
		img, ok := images[u]
		if !ok {
			continue
		}
		r.image(pdf, fmt.Sprintf("day-%d-%d", d.Number, i), img)
	}
	pdf.Ln(6)
}

func (r *PDFRenderer) image(pdf *gofpdf.Fpdf, name string, img image.Image) {
	fitted := imaging.Fit(img, 1200, 600, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		r.logger.Debug().Err(err).Str("image", name).Msg("Skipping image")
		return
	}

	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader(name, opts, &buf)

	b := fitted.Bounds()
	h := contentWidth * float64(b.Dy()) / float64(b.Dx())
	pdf.ImageOptions(name, pageMargin, -1, contentWidth, h, true, opts, 0, "")
	pdf.Ln(3)
}

func (r *PDFRenderer) qr(pdf *gofpdf.Fpdf, tr func(string) string, link string) {
	if link == "" {
		return
	}
	png, err := ShareQR(link, qrSize)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Skipping share QR")
		return
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("share-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("share-qr", (a4WidthMM-40)/2, -1, 40, 40, true, opts, 0, link)
	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(100, 116, 139)
	pdf.CellFormat(0, 5, tr(link), "", 1, "C", false, 0, link)
}

func heading(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont("Arial", "B", 15)
	pdf.SetTextColor(31, 41, 55)
	pdf.CellFormat(0, 10, tr(title), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
}

func bullets(pdf *gofpdf.Fpdf, tr func(string) string, items []string) {
	pdf.SetFont("Arial", "", 10)
	for _, item := range items {
		pdf.CellFormat(6, lineHeight, "-", "", 0, "L", false, 0, "")
		pdf.MultiCell(0, lineHeight, tr(item), "", "L", false)
	}
}
