package document

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/itinerary.html
var templatesFS embed.FS

var itineraryTemplate = template.Must(template.ParseFS(templatesFS, "templates/itinerary.html"))

type htmlView struct {
	*Document
	QRDataURI template.URL
}

// RenderHTML writes the print-ready preview page. The same markup is sent to
// the rasterizer for raster PDF exports.
func RenderHTML(w io.Writer, doc *Document) error {
	view := htmlView{Document: doc}
	if doc.ShareURL != "" {
		png, err := ShareQR(doc.ShareURL, qrSize)
		if err == nil {
			view.QRDataURI = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
		}
	}

	// рендерим в буфер, чтобы не отдавать клиенту половину страницы
	var buf bytes.Buffer
	if err := itineraryTemplate.ExecuteTemplate(&buf, "itinerary.html", view); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
