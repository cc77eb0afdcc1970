package reference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bioval/internal/tabular"
	"bioval/pkg/domain"
)

// Defaults for the REDCap report export.
const (
	DefaultReportID      = 27
	DefaultREDCapTimeout = 20 * time.Second
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 2048

// REDCap exports a saved report from a REDCap project API.
type REDCap struct {
	http     *http.Client
	url      string
	token    string
	reportID int
}

// REDCapOption customises a REDCap supplier.
type REDCapOption func(*REDCap)

// WithReportID selects the report to export.
func WithReportID(id int) REDCapOption {
	return func(r *REDCap) {
		if id > 0 {
			r.reportID = id
		}
	}
}

// WithTimeout bounds each export request.
func WithTimeout(d time.Duration) REDCapOption {
	return func(r *REDCap) {
		if d > 0 {
			r.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client. Its timeout is kept as is.
func WithHTTPClient(c *http.Client) REDCapOption {
	return func(r *REDCap) {
		if c != nil {
			r.http = c
		}
	}
}

// NewREDCap builds a supplier for the API at apiURL authenticated by token.
func NewREDCap(apiURL, token string, opts ...REDCapOption) (*REDCap, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, errors.New("redcap: api url is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("redcap: api token is required")
	}
	r := &REDCap{
		http:     &http.Client{Timeout: DefaultREDCapTimeout},
		url:      apiURL,
		token:    token,
		reportID: DefaultReportID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ReportID returns the report the supplier exports.
func (r *REDCap) ReportID() int { return r.reportID }

func (r *REDCap) form() url.Values {
	return url.Values{
		"token":               {r.token},
		"content":             {"report"},
		"format":              {"json"},
		"report_id":           {strconv.Itoa(r.reportID)},
		"csvDelimiter":        {""},
		"rawOrLabel":          {"raw"},
		"rawOrLabelHeaders":   {"raw"},
		"exportCheckboxLabel": {"false"},
		"returnFormat":        {"json"},
	}
}

// Fetch implements Supplier. Failures are returned as *domain.TransportError
// and never retried.
func (r *REDCap) Fetch(ctx context.Context) (tabular.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, strings.NewReader(r.form().Encode()))
	if err != nil {
		return tabular.Table{}, &domain.TransportError{Kind: domain.TransportConnection, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return tabular.Table{}, classify(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tabular.Table{}, classify(err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return tabular.Table{}, &domain.TransportError{
			Kind:    domain.TransportStatus,
			Message: fmt.Sprintf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}
	rows, err := decodeReport(body)
	if err != nil {
		return tabular.Table{}, &domain.TransportError{Kind: domain.TransportPayload, Message: "decode report", Err: err}
	}
	return tabular.Table{Headers: tabular.Headers(rows), Rows: rows}, nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.TransportError{Kind: domain.TransportTimeout, Message: "request timed out", Err: err}
	}
	return &domain.TransportError{Kind: domain.TransportConnection, Message: "request failed", Err: err}
}

// decodeReport turns a JSON array of flat objects into records.
func decodeReport(body []byte) ([]domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("expected a JSON array of records")
	}
	rows := make([]domain.Record, 0, len(raw))
	for _, obj := range raw {
		rec := make(domain.Record, len(obj))
		for k, v := range obj {
			s, err := stringify(v)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			rec[k] = s
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value of type %T", v)
	}
}
