// CLAUDE:SUMMARY Re-hosts scraped weapon images on imgur; AVIF/WebP sources are re-encoded to PNG first. Never fails the caller.
// Package imagerelay fetches a remote image and re-uploads it to an image
// host so chat embeds get a stable, universally renderable URL.
package imagerelay

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gen2brain/avif"
	"github.com/go-resty/resty/v2"
	"golang.org/x/image/webp"
)

// DefaultEndpoint is the imgur anonymous upload API.
const DefaultEndpoint = "https://api.imgur.com/3/image"

// ConvertFunc re-encodes image bytes of the given format ("avif", "webp")
// into PNG.
type ConvertFunc func(data []byte, format string) ([]byte, error)

// Relay re-hosts images. The zero value is not usable; call New.
type Relay struct {
	client   *resty.Client
	clientID string
	endpoint string
	convert  ConvertFunc
	logger   *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithEndpoint overrides the upload endpoint.
func WithEndpoint(u string) Option {
	return func(r *Relay) { r.endpoint = u }
}

// WithClient sets a custom resty client.
func WithClient(c *resty.Client) Option {
	return func(r *Relay) { r.client = c }
}

// WithConverter replaces the PNG converter.
func WithConverter(fn ConvertFunc) Option {
	return func(r *Relay) { r.convert = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// New creates a Relay uploading with the given client identifier.
func New(clientID string, opts ...Option) *Relay {
	r := &Relay{
		client:   resty.New().SetTimeout(30 * time.Second),
		clientID: clientID,
		endpoint: DefaultEndpoint,
		convert:  ToPNG,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type uploadResponse struct {
	Data struct {
		Link string `json:"link"`
	} `json:"data"`
	Success bool `json:"success"`
}

// Rehost fetches src and uploads it, returning the hosted URL. Any failure
// is logged and reported as "".
func (r *Relay) Rehost(ctx context.Context, src string) string {
	if src == "" {
		return ""
	}
	if r.clientID == "" {
		r.logger.Warn("imagerelay: no client id, skipping upload", "src", src)
		return ""
	}
	link, err := r.rehost(ctx, src)
	if err != nil {
		r.logger.Warn("imagerelay: upload failed", "src", src, "error", err)
		return ""
	}
	r.logger.Debug("imagerelay: uploaded", "src", src, "link", link)
	return link
}

func (r *Relay) rehost(ctx context.Context, src string) (link string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("imagerelay: panic: %v", p)
		}
	}()

	resp, err := r.client.R().SetContext(ctx).Get(src)
	if err != nil {
		return "", fmt.Errorf("imagerelay: fetch: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("imagerelay: fetch: status %d", resp.StatusCode())
	}
	data := resp.Body()
	filename := path.Base(urlPath(src))
	if filename == "" || filename == "." || filename == "/" {
		filename = "image"
	}

	if format := NeedsConversion(src, resp.Header().Get("Content-Type")); format != "" {
		data, err = r.convert(data, format)
		if err != nil {
			return "", fmt.Errorf("imagerelay: convert %s: %w", format, err)
		}
		filename = "upload.png"
	}

	var out uploadResponse
	up, err := r.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Client-ID "+r.clientID).
		SetFileReader("image", filename, bytes.NewReader(data)).
		SetResult(&out).
		Post(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("imagerelay: upload: %w", err)
	}
	if !up.IsSuccess() {
		return "", fmt.Errorf("imagerelay: upload: status %d", up.StatusCode())
	}
	if out.Data.Link == "" {
		return "", fmt.Errorf("imagerelay: upload: response has no link")
	}
	return out.Data.Link, nil
}

// NeedsConversion returns the source format ("avif" or "webp") when the
// image must be re-encoded before upload, judged by the URL path suffix or
// the response content type. It returns "" for formats that pass through.
func NeedsConversion(src, contentType string) string {
	p := strings.ToLower(urlPath(src))
	switch {
	case strings.HasSuffix(p, ".avif"):
		return "avif"
	case strings.HasSuffix(p, ".webp"):
		return "webp"
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "image/avif":
		return "avif"
	case "image/webp":
		return "webp"
	}
	return ""
}

// ToPNG decodes AVIF or WebP bytes and re-encodes them as PNG.
func ToPNG(data []byte, format string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch format {
	case "avif":
		img, err = avif.Decode(bytes.NewReader(data))
	case "webp":
		img, err = webp.Decode(bytes.NewReader(data))
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func urlPath(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	return u.Path
}
