package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// ImageSource loads day photos for the native PDF.
type ImageSource interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// errBlockedAddress is returned for image hosts inside the private network.
var errBlockedAddress = errors.New("image host address not allowed")

// ImageFetcher downloads images over HTTP with a per-request timeout and a
// size cap, then scales them down to fit the page. Day image URLs come from
// editable itineraries, so only http(s) to public addresses is dialed.
type ImageFetcher struct {
	client       *http.Client
	maxBytes     int64
	maxWidth     int
	allowPrivate bool
	logger       *zerolog.Logger
}

func NewImageFetcher(timeout time.Duration, maxBytes int64, logger *zerolog.Logger) *ImageFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	l := logger.With().Str("component", "image_fetcher").Logger()
	f := &ImageFetcher{
		maxBytes: maxBytes,
		maxWidth: 1200,
		logger:   &l,
	}
	// проверка адреса при каждом соединении, включая редиректы
	dialer := &net.Dialer{Timeout: timeout, Control: f.checkAddress}
	f.client = &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{DialContext: dialer.DialContext},
	}
	return f
}

func (f *ImageFetcher) checkAddress(_, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedAddress, address)
	}
	if blockedAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", errBlockedAddress, ap.Addr())
	}
	return nil
}

func blockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() || addr.IsMulticast()
}

func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse image url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("image url scheme %q not allowed", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.New("image url has no host")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("fetch image: %d bytes exceeds limit", resp.ContentLength)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, f.maxBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if img.Bounds().Dx() > f.maxWidth {
		img = imaging.Resize(img, f.maxWidth, 0, imaging.Lanczos)
	}
	return img, nil
}

// fetchAll loads every url it can. Broken or unreachable images are logged
// and left out of the result.
func fetchAll(ctx context.Context, src ImageSource, urls []string, logger *zerolog.Logger) map[string]image.Image {
	out := make(map[string]image.Image, len(urls))
	if src == nil {
		return out
	}
	for _, u := range urls {
		if _, ok := out[u]; ok {
			continue
		}
		img, err := src.Fetch(ctx, u)
		if err != nil {
			logger.Debug().Err(err).Str("url", u).Msg("Skipping image")
			continue
		}
		out[u] = img
	}
	return out
}
