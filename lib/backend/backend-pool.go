package backend

import (
	"context"
	"sync"
	"time"

	"mortar/lib/model"
)

// Pool polls a list of backends sharing the same status cache
type Pool struct {
	Clients []*Client
	Cache   *StatusCache
}

// NewPool returns a pool with a client for each target
func NewPool(targets []model.ServerTarget, cache *StatusCache, timeout time.Duration) *Pool {
	p := &Pool{Cache: cache}
	for _, t := range targets {
		p.Clients = append(p.Clients, NewClient(t, cache, timeout))
	}
	return p
}

// PollAll polls every backend concurrently and returns the results in target order.
// A failing backend results in a placeholder and never delays the others
// for more than the client timeout.
func (p *Pool) PollAll(ctx context.Context) []*Result {
	results := make([]*Result, len(p.Clients))

	var wg sync.WaitGroup
	for i, c := range p.Clients {
		wg.Add(1)
		go func(i int, c *Client) {
			defer wg.Done()
			res, logMrt := c.Poll(ctx)
			if logMrt != nil {
				logMrt.Log(true)
			}
			results[i] = res
		}(i, c)
	}
	wg.Wait()

	return results
}

// Documents returns the status documents of the results that are not placeholders
func Documents(results []*Result) []*model.StatusDocument {
	docs := []*model.StatusDocument{}
	for _, r := range results {
		if r == nil || r.Placeholder {
			continue
		}
		docs = append(docs, r.Status.Data)
	}
	return docs
}

// RawDocuments returns the status json, as received, of the results that are not placeholders
func RawDocuments(results []*Result) [][]byte {
	raws := [][]byte{}
	for _, r := range results {
		if r == nil || r.Placeholder {
			continue
		}
		raws = append(raws, r.Status.Raw)
	}
	return raws
}
