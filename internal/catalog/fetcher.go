package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html/charset"
)

var tracer = otel.Tracer("ipadstatus/catalog")

// IDPlaceholder marks where the device ID goes in a URL template.
const IDPlaceholder = "{id}"

// Fetcher retrieves the raw holdings page for one device ID.
type Fetcher interface {
	Fetch(ctx context.Context, deviceID string) (string, error)
}

// FetchErrorKind classifies a fetch failure.
type FetchErrorKind string

const (
	FetchTransport FetchErrorKind = "transport"
	FetchDecode    FetchErrorKind = "decode"
)

// FetchError is returned when a page could not be retrieved. Callers treat it
// as "no records" for the device.
type FetchError struct {
	DeviceID string
	URL      string
	Kind     FetchErrorKind
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %s: %v", e.DeviceID, e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherOptions configures an HTTPFetcher.
type FetcherOptions struct {
	URLTemplate string
	HTTPProxy   string
	UserAgent   string
	// Zero means no client timeout; the request context still applies.
	Timeout time.Duration
}

// HTTPFetcher issues one GET per device against the catalog.
type HTTPFetcher struct {
	template string
	client   *resty.Client
}

// NewHTTPFetcher creates a fetcher backed by a resty client.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	client := resty.New()
	if opts.HTTPProxy != "" {
		if _, err := url.Parse(opts.HTTPProxy); err != nil {
			log.Warn().Err(err).Str("proxy", opts.HTTPProxy).Msg("invalid proxy URL, fetching without proxy")
		} else {
			client.SetProxy(opts.HTTPProxy)
		}
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &HTTPFetcher{
		template: opts.URLTemplate,
		client:   client,
	}
}

// URL returns the catalog address for a device. The ID is inserted as-is.
func (f *HTTPFetcher) URL(deviceID string) string {
	return strings.ReplaceAll(f.template, IDPlaceholder, deviceID)
}

// Fetch returns the page decoded to UTF-8. The HTTP status is not checked:
// error pages simply parse to nothing.
func (f *HTTPFetcher) Fetch(ctx context.Context, deviceID string) (string, error) {
	target := f.URL(deviceID)

	ctx, span := tracer.Start(ctx, "catalog:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("device_id", deviceID))

	res, err := f.client.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", &FetchError{DeviceID: deviceID, URL: target, Kind: FetchTransport, Err: err}
	}
	span.SetAttributes(attribute.Int("status_code", res.StatusCode()))

	reader, err := charset.NewReader(bytes.NewReader(res.Body()), res.Header().Get("Content-Type"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown charset")
		return "", &FetchError{DeviceID: deviceID, URL: target, Kind: FetchDecode, Err: err}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return "", &FetchError{DeviceID: deviceID, URL: target, Kind: FetchDecode, Err: err}
	}

	log.Debug().
		Str("device", deviceID).
		Int("status", res.StatusCode()).
		Int("bytes", len(body)).
		Msg("fetched catalog page")
	return string(body), nil
}
