// Package events lists upcoming events from a published spreadsheet.
//
// The sheet is fetched as CSV on every call. Rows are form responses: column
// 0 is the submission timestamp and is ignored, columns 1 to 4 hold the event
// name, description, date and time.
package events

import (
	"bytes"
	"cmp"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Den9mn/novi-weather/internal/observe"
	"github.com/Den9mn/novi-weather/internal/resilience"
)

// ErrFetchFailed wraps every error caused by downloading or reading the sheet.
var ErrFetchFailed = errors.New("events: fetch failed")

// maxBodyBytes caps the downloaded sheet.
const maxBodyBytes = 4 << 20

// Column indexes within a row.
const (
	colName = iota + 1
	colDescription
	colDate
	colTime
)

// Event is one upcoming entry. Date and Time keep the sheet's original text.
type Event struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// Option configures a Feed.
type Option func(*Feed)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Feed) { f.client = hc }
}

// WithTimeout bounds a single download. Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(f *Feed) { f.timeout = d }
}

// WithLocation sets the timezone event dates are interpreted in. Default:
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(f *Feed) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithNow replaces the clock used to drop past events.
func WithNow(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithRetry sets the retry policy of the download. Only transport errors are
// retried.
func WithRetry(p resilience.RetryPolicy) Option {
	return func(f *Feed) { f.retry = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(f *Feed) { f.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.log = l }
}

// Feed reads events from one sheet URL. It is safe for concurrent use.
type Feed struct {
	url     string
	client  *http.Client
	timeout time.Duration
	loc     *time.Location
	now     func() time.Time
	retry   resilience.RetryPolicy
	metrics *observe.Metrics
	log     *slog.Logger
}

// New returns a Feed for the CSV export at sheetURL.
func New(sheetURL string, opts ...Option) (*Feed, error) {
	if sheetURL == "" {
		return nil, errors.New("events: sheet URL must not be empty")
	}
	f := &Feed{
		url:     sheetURL,
		timeout: 10 * time.Second,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	if f.metrics == nil {
		f.metrics = observe.DefaultMetrics()
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	f.log = f.log.With("component", "events")
	if f.retry.Name == "" {
		f.retry.Name = "fetch events"
	}
	if f.retry.Logger == nil {
		f.retry.Logger = f.log
	}
	return f, nil
}

// Upcoming downloads the sheet and returns the events at or after now, one
// per name (the soonest), sorted by start time.
func (f *Feed) Upcoming(ctx context.Context) ([]Event, error) {
	ctx, span := observe.StartSpan(ctx, "events.upcoming")
	defer span.End()

	var body []byte
	err := resilience.Retry(ctx, f.retry, func(ctx context.Context) error {
		b, err := f.fetch(ctx)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		f.metrics.RecordProviderError(ctx, "sheets", "events")
		observe.FailSpan(span, err)
		return nil, err
	}

	evs, err := Parse(bytes.NewReader(body), f.now(), f.loc)
	if err != nil {
		observe.FailSpan(span, err)
		return nil, err
	}
	return evs, nil
}

func (f *Feed) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "text/csv")

	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.RecordProviderRequest(ctx, "sheets", "events", "error")
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()
	f.metrics.RecordProviderRequest(ctx, "sheets", "events", strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	return b, nil
}

// Parse reads sheet CSV from r and returns the events starting at or after
// now, interpreting dates in loc. The first row is a header and is skipped.
// Rows without a name or a parseable date are dropped.
func Parse(r io.Reader, now time.Time, loc *time.Location) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	type dated struct {
		Event
		at time.Time
	}
	soonest := make(map[string]dated)

	header := true
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("events: parse csv: %w", err)
		}
		if header {
			header = false
			continue
		}

		ev := Event{
			Name:        field(row, colName),
			Description: field(row, colDescription),
			Date:        field(row, colDate),
			Time:        field(row, colTime),
		}
		if ev.Name == "" || ev.Date == "" {
			continue
		}
		at, ok := StartTime(ev.Date, ev.Time, loc)
		if !ok || at.Before(now) {
			continue
		}
		if prev, seen := soonest[ev.Name]; !seen || at.Before(prev.at) {
			soonest[ev.Name] = dated{Event: ev, at: at}
		}
	}

	all := make([]dated, 0, len(soonest))
	for _, d := range soonest {
		all = append(all, d)
	}
	slices.SortFunc(all, func(a, b dated) int {
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	out := make([]Event, len(all))
	for i, d := range all {
		out[i] = d.Event
	}
	return out, nil
}

var (
	dateLayouts = []string{"2006-01-02", "2/1/2006"}
	timeLayouts = []string{"15:04", "15:04:05"}
)

// StartTime combines a sheet date (YYYY-MM-DD or D/M/YYYY) and an optional
// time (HH:MM, default midnight) in loc.
func StartTime(date, clock string, loc *time.Location) (time.Time, bool) {
	var d time.Time
	ok := false
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l, date, loc); err == nil {
			d, ok = t, true
			break
		}
	}
	if !ok {
		return time.Time{}, false
	}
	if clock == "" {
		return d, true
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, clock); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
		}
	}
	return time.Time{}, false
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
