package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"itinera/internal/models"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleItinerary() *models.Itinerary {
	return &models.Itinerary{
		ID:          "it-1",
		Title:       "Paris Escape",
		Destination: "Paris",
		StartDate:   "2026-05-01",
		EndDate:     "2026-05-04",
		Duration:    "4 Days / 3 Nights",
		Travelers:   2,
		Budget:      "mid-range",
		Theme:       "culture",
		Status:      models.StatusShared,
		ShareToken:  "tok-1",
		Flights:     models.Flights{Departure: "AF1 08:00", Return: "AF2 19:00"},
		Accommodation: models.Accommodation{
			Hotel:  "Hôtel Lumière",
			Nights: 3,
			Rating: "4*",
		},
		Days: []models.ItineraryDay{
			{Day: 1, Date: "2026-05-01", Title: "Arrival", City: "Paris", Activities: []string{"Check in", "Seine walk"}, Meals: "Dinner", Accommodation: "Hôtel Lumière", Images: []string{"http://img/1.jpg"}},
			{Day: 2, Date: "2026-05-02", Title: "Louvre", City: "Paris", Activities: []string{"Louvre"}, Description: "Museum day"},
			{Day: 3, Date: "2026-05-03", Title: "Departure", City: "Paris"},
		},
		Inclusions: []string{"Breakfast", " "},
		Exclusions: []string{"Visa"},
		Consultant: models.Consultant{Name: "Anna", Email: "anna@example.com", Phone: "+33 1", Company: "Itinera"},
		CreatedAt:  time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
	}
}

type stubImages struct {
	ok map[string]image.Image
}

func (s *stubImages) Fetch(_ context.Context, url string) (image.Image, error) {
	if img, found := s.ok[url]; found {
		return img, nil
	}
	return nil, errors.New("broken image")
}

type stubRasterizer struct {
	img image.Image
	err error
}

func (s *stubRasterizer) Rasterize(_ context.Context, _ []byte) (image.Image, error) {
	return s.img, s.err
}

func TestBuild(t *testing.T) {
	doc := Build(sampleItinerary(), Options{ShareURL: "https://trips.example.com/itinerary/tok-1"})

	assert.Equal(t, "Paris Escape", doc.Title)
	assert.Equal(t, "Paris's Best Escape", doc.Subtitle)
	assert.Equal(t, "http://img/1.jpg", doc.HeroImage)
	assert.False(t, doc.GeneratedAt.IsZero())

	require.Len(t, doc.Sections, 5)
	assert.Equal(t, models.SectionGeneral, doc.Sections[0].Key)
	assert.Equal(t, "01 May 2026", doc.Sections[0].Fields[1].Value)
	assert.Equal(t, []string{"Breakfast"}, doc.Sections[3].Items)
	assert.Equal(t, "Includes 3 breakfasts", doc.Sections[3].Text)

	require.Len(t, doc.Days, 3)
	assert.Equal(t, []string{"Day 1: Arrival", "Day 2: Louvre", "Day 3: Departure"}, doc.Summary)
	assert.Contains(t, doc.Days[0].Description, "Check in. Seine walk")
	assert.Equal(t, "Museum day", doc.Days[1].Description)
	assert.Empty(t, doc.Days[2].Description)
	assert.Equal(t, "Anna", doc.Consultant.Fields[0].Value)
}

func TestBuildNil(t *testing.T) {
	doc := Build(nil, Options{})
	assert.Empty(t, doc.Title)
	assert.Empty(t, doc.Days)
}

func TestRenderHTML(t *testing.T) {
	it := sampleItinerary()
	it.Title = "Paris <script>alert(1)</script>"

	var buf bytes.Buffer
	err := RenderHTML(&buf, Build(it, Options{ShareURL: "https://trips.example.com/itinerary/tok-1"}))
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.Contains(t, out, `id="day-2"`)
	assert.Contains(t, out, "Seine walk")
	assert.Contains(t, out, "data:image/png;base64,")
}

func TestRenderHTMLWithoutShareLink(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, Build(sampleItinerary(), Options{})))
	assert.NotContains(t, buf.String(), "data:image/png")
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		page   int
		expect []Band
	}{
		{"partial last page", 1000, 300, []Band{{0, 300}, {300, 600}, {600, 900}, {900, 1000}}},
		{"exact fit", 600, 300, []Band{{0, 300}, {300, 600}}},
		{"shorter than page", 100, 300, []Band{{0, 100}}},
		{"empty bitmap", 0, 300, []Band{{0, 0}}},
		{"zero page height", 100, 0, []Band{{0, 100}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Paginate(tt.total, tt.page))
		})
	}
}

func TestPageHeightPx(t *testing.T) {
	assert.Equal(t, 297, pageHeightPx(210))
	assert.Equal(t, 1131, pageHeightPx(800))
}

func TestWriteRasterPDF(t *testing.T) {
	img := imaging.New(210, 700, color.White)

	var buf bytes.Buffer
	require.NoError(t, WriteRasterPDF(&buf, img, "Paris"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))

	err := WriteRasterPDF(&buf, image.NewNRGBA(image.Rect(0, 0, 0, 0)), "empty")
	assert.Error(t, err)
}

func TestHTTPRasterizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)

		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "index.html", part.FileName())
		body, _ := io.ReadAll(part)
		assert.Contains(t, string(body), "Paris")

		_ = imaging.Encode(w, imaging.New(50, 120, color.White), imaging.PNG)
	}))
	defer srv.Close()

	r := NewHTTPRasterizer(srv.URL, time.Second)
	img, err := r.Rasterize(context.Background(), []byte("<h1>Paris</h1>"))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())
}

func TestHTTPRasterizerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPRasterizer(srv.URL, time.Second).Rasterize(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestImageFetcher(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		_ = imaging.Encode(w, imaging.New(2400, 100, color.Black), imaging.PNG)
	})
	mux.HandleFunc("/garbage.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	logger := zerolog.Nop()
	f := NewImageFetcher(time.Second, 1<<20, &logger)
	f.allowPrivate = true

	img, err := f.Fetch(context.Background(), srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, 1200, img.Bounds().Dx())

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), srv.URL+"/garbage.png")
	assert.Error(t, err)
}

func TestImageFetcherRefusesInternalTargets(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_ = imaging.Encode(w, imaging.New(10, 10, color.Black), imaging.PNG)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	f := NewImageFetcher(time.Second, 1<<20, &logger)

	for _, u := range []string{
		srv.URL + "/ok.png",
		"http://localhost:1/ok.png",
		"http://10.0.0.7/ok.png",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/ok.png",
		"file:///etc/passwd",
		"ftp://example.com/ok.png",
		"http:///ok.png",
	} {
		_, err := f.Fetch(context.Background(), u)
		assert.Error(t, err, u)
	}
	assert.Zero(t, hits)

	_, err := f.Fetch(context.Background(), srv.URL+"/ok.png")
	assert.ErrorIs(t, err, errBlockedAddress)
}

func TestBlockedAddr(t *testing.T) {
	for _, raw := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.1", "172.16.5.5", "169.254.169.254", "::1", "fc00::1", "0.0.0.0", "::ffff:127.0.0.1"} {
		assert.True(t, blockedAddr(netip.MustParseAddr(raw)), raw)
	}
	for _, raw := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		assert.False(t, blockedAddr(netip.MustParseAddr(raw)), raw)
	}
}

func TestPDFRendererSkipsBrokenImages(t *testing.T) {
	it := sampleItinerary()
	it.Days[1].Images = []string{"http://img/broken.jpg", "http://img/1.jpg"}

	logger := zerolog.Nop()
	src := &stubImages{ok: map[string]image.Image{"http://img/1.jpg": imaging.New(400, 200, color.White)}}
	r := NewPDFRenderer(src, &logger)

	var buf bytes.Buffer
	err := r.Render(context.Background(), &buf, Build(it, Options{ShareURL: "https://trips.example.com/itinerary/tok-1"}))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestExporterPDF(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("RasterPath", func(t *testing.T) {
		e := NewExporter(nil, &stubRasterizer{img: imaging.New(210, 400, color.White)}, &logger)
		var buf bytes.Buffer
		require.NoError(t, e.PDF(context.Background(), &buf, sampleItinerary(), Options{}))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	})

	t.Run("FallbackToNative", func(t *testing.T) {
		e := NewExporter(nil, &stubRasterizer{err: errors.New("rasterizer down")}, &logger)
		var buf bytes.Buffer
		require.NoError(t, e.PDF(context.Background(), &buf, sampleItinerary(), Options{}))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	})
}

func TestExporterDashboard(t *testing.T) {
	logger := zerolog.Nop()
	e := NewExporter(nil, nil, &logger)

	second := sampleItinerary()
	second.Title = "Rome"
	second.Status = models.StatusFeedback
	second.Comments = []models.Comment{{ID: "c1", Status: models.CommentPending}}

	var buf bytes.Buffer
	require.NoError(t, e.Dashboard(&buf, []*models.Itinerary{sampleItinerary(), second}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	stats, err := f.GetCellValue(dashboardSheet, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Total: 2  Active: 2  Feedback: 1  Completed: 0", stats)

	header, _ := f.GetCellValue(dashboardSheet, "A4")
	assert.Equal(t, "Title", header)

	title, _ := f.GetCellValue(dashboardSheet, "A6")
	assert.Equal(t, "Rome", title)
	status, _ := f.GetCellValue(dashboardSheet, "I6")
	assert.Equal(t, models.StatusFeedback, status)
	pending, _ := f.GetCellValue(dashboardSheet, "J6")
	assert.Equal(t, "1", pending)
}

func TestShareQR(t *testing.T) {
	png, err := ShareQR("https://trips.example.com/itinerary/tok-1", 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	_, err = ShareQR("", 128)
	assert.Error(t, err)
}
