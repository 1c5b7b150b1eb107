package aggregate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mortar/lib/errco"
	"mortar/lib/model"
)

// maxBodySize limits the aggregation response read by Fetch
const maxBodySize = 4 << 20

// Fetcher retrieves the composite status from the aggregation endpoint
type Fetcher struct {
	URL     string // endpoint answering with the composite status
	Favicon string // favicon used when the status is composed locally
	client  *http.Client
}

// NewFetcher returns a fetcher querying url with the specified timeout
func NewFetcher(url, favicon string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		URL:     url,
		Favicon: favicon,
		client:  &http.Client{Timeout: timeout},
	}
}

// Fetch returns the composite status json for a client using protocol.
//
// The endpoint can answer with a status object (returned as it is)
// or with a list of backend statuses (composed locally).
// On failure the status composed from an empty list is returned together with the error.
func (f *Fetcher) Fetch(ctx context.Context, protocol int32, clientIP string) ([]byte, *errco.MrtLog) {
	data, logMrt := f.fetch(ctx, protocol, clientIP)
	if logMrt != nil {
		fallback, _ := json.Marshal(Compose(nil, protocol, f.Favicon))
		return fallback, logMrt.AddTrace()
	}
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, protocol int32, clientIP string) ([]byte, *errco.MrtLog) {
	u, err := url.Parse(f.URL)
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_AGGREGATION_FETCH, "invalid aggregation url: %s", err.Error())
	}
	q := u.Query()
	q.Set("protocolVersion", strconv.Itoa(int(protocol)))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_AGGREGATION_FETCH, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if clientIP != "" {
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_AGGREGATION_FETCH, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_AGGREGATION_FETCH, "aggregation endpoint answered %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_AGGREGATION_FETCH, err.Error())
	}

	body = bytes.TrimSpace(body)
	switch {
	case len(body) > 0 && body[0] == '{' && json.Valid(body):
		return body, nil

	case len(body) > 0 && body[0] == '[':
		docs := []*model.StatusDocument{}
		if err := json.Unmarshal(body, &docs); err != nil {
			return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_AGGREGATION_FETCH, "invalid status list: %s", err.Error())
		}
		data, err := json.Marshal(Compose(docs, protocol, f.Favicon))
		if err != nil {
			return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_MARSHAL, err.Error())
		}
		return data, nil

	default:
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_AGGREGATION_FETCH, "aggregation endpoint answered with %s", fmt.Sprintf("%.64q", body))
	}
}
