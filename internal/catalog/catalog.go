// Package catalog provides the canonical difficulty and topic lists that
// requests are validated against. Lists come from the question service and
// are cached locally; when the service is unreachable a fixed default set is
// served instead.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// Lists is one snapshot of the canonical values. Difficulty order matters:
// neighbours in the slice are "adjacent" levels.
type Lists struct {
	Difficulties []string
	Topics       []string
}

// HasDifficulty reports whether d is canonical.
func (l Lists) HasDifficulty(d string) bool { return slices.Contains(l.Difficulties, d) }

// HasTopic reports whether t is canonical.
func (l Lists) HasTopic(t string) bool { return slices.Contains(l.Topics, t) }

// DefaultLists is served when the question service cannot be reached.
func DefaultLists() Lists {
	return Lists{
		Difficulties: []string{"Easy", "Medium", "Hard"},
		Topics:       []string{"AI", "Arrays", "Cybersecurity", "Dynamic Programming", "Graphs", "Sorting", "Trees"},
	}
}

// Static always returns the same lists.
type Static Lists

func (s Static) Lists(context.Context) (Lists, error) { return Lists(s), nil }

const cacheKey = "lists"

// DefaultCacheTTL is used when a client is built with a non-positive ttl.
const DefaultCacheTTL = 5 * time.Minute

// Client fetches lists from GET <base>/api/questions/statistics.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *cache.Cache
	ttl     time.Duration
	log     *slog.Logger
}

// NewClient builds a catalog client. ttl bounds how long a fetched snapshot is
// reused before the service is asked again; non-positive values mean
// DefaultCacheTTL.
func NewClient(baseURL string, ttl, timeout time.Duration, log *slog.Logger) *Client {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		cache:   cache.New(ttl, 2*ttl),
		ttl:     ttl,
		log:     log,
	}
}

// Lists returns the cached snapshot, refreshing it when stale. It never fails:
// fetch errors are logged and the defaults are returned (but not cached, so
// the next call retries the service).
func (c *Client) Lists(ctx context.Context) (Lists, error) {
	if v, ok := c.cache.Get(cacheKey); ok {
		return v.(Lists), nil
	}

	lists, err := c.fetch(ctx)
	if err != nil {
		c.log.Warn("question catalog unavailable, using defaults", "base", c.baseURL, "err", err)
		return DefaultLists(), nil
	}

	c.cache.Set(cacheKey, lists, c.ttl)
	return lists, nil
}

type statisticsResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		ByDifficulty []struct {
			ID string `json:"_id"`
		} `json:"byDifficulty"`
		ByCategory []struct {
			ID string `json:"_id"`
		} `json:"byCategory"`
	} `json:"data"`
}

func (c *Client) fetch(ctx context.Context) (Lists, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/questions/statistics", nil)
	if err != nil {
		return Lists{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Lists{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Lists{}, fmt.Errorf("statistics returned %s", resp.Status)
	}

	var body statisticsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Lists{}, fmt.Errorf("decode statistics: %w", err)
	}
	if !body.Success || body.Data == nil {
		return Lists{}, fmt.Errorf("statistics returned unexpected shape")
	}

	var lists Lists
	for _, d := range body.Data.ByDifficulty {
		if d.ID != "" {
			lists.Difficulties = append(lists.Difficulties, d.ID)
		}
	}
	for _, t := range body.Data.ByCategory {
		if t.ID != "" {
			lists.Topics = append(lists.Topics, t.ID)
		}
	}
	if len(lists.Difficulties) == 0 || len(lists.Topics) == 0 {
		return Lists{}, fmt.Errorf("catalog has no difficulties or topics")
	}
	orderDifficulties(lists.Difficulties)
	return lists, nil
}

// orderDifficulties puts well-known levels in Easy < Medium < Hard order.
// The statistics endpoint groups without ordering; unknown levels keep their
// relative position after the known ones.
func orderDifficulties(diffs []string) {
	rank := func(d string) int {
		if i := slices.Index(DefaultLists().Difficulties, d); i >= 0 {
			return i
		}
		return len(diffs) + 1
	}
	sort.SliceStable(diffs, func(i, j int) bool { return rank(diffs[i]) < rank(diffs[j]) })
}
