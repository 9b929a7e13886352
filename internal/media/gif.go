package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"ai-workout-planner/internal/logger"
)

const (
	defaultGiphyEndpoint = "https://api.giphy.com/v1/gifs/search"
	fetchTimeout         = 10 * time.Second
)

// GifResult is what the /gif endpoint returns. OK is false when nothing
// usable was found.
type GifResult struct {
	OK     bool   `json:"ok"`
	URL    string `json:"url,omitempty"`
	Gif    string `json:"gif,omitempty"`
	Still  string `json:"still,omitempty"`
	GifW   int    `json:"gif_w"`
	GifH   int    `json:"gif_h"`
	StillW int    `json:"still_w"`
	StillH int    `json:"still_h"`
}

func (r GifResult) withURL() GifResult {
	r.URL = r.Gif
	if r.URL == "" {
		r.URL = r.Still
	}
	r.OK = r.URL != ""
	return r
}

// GifLookup searches Giphy for an exercise animation and remembers every
// answer in its cache, including empty ones.
type GifLookup struct {
	apiKey   string
	endpoint string
	client   *http.Client
	cache    Cache
	log      *logger.Logger
	group    singleflight.Group
}

type GifOption func(*GifLookup)

func WithGiphyEndpoint(endpoint string) GifOption {
	return func(g *GifLookup) { g.endpoint = endpoint }
}

func WithHTTPClient(c *http.Client) GifOption {
	return func(g *GifLookup) { g.client = c }
}

func WithCache(c Cache) GifOption {
	return func(g *GifLookup) { g.cache = c }
}

func WithLogger(log *logger.Logger) GifOption {
	return func(g *GifLookup) { g.log = log }
}

func NewGifLookup(apiKey string, opts ...GifOption) *GifLookup {
	g := &GifLookup{
		apiKey:   apiKey,
		endpoint: defaultGiphyEndpoint,
		client:   &http.Client{Timeout: fetchTimeout},
		cache:    NewMemoryCache(),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func cacheKey(q string) string {
	return "g:" + strings.ToLower(q)
}

// Search never fails. A blank query, a missing API key or an upstream error
// all yield a result with OK false.
func (g *GifLookup) Search(ctx context.Context, query string) GifResult {
	q := strings.TrimSpace(query)
	if q == "" {
		return GifResult{}
	}
	key := cacheKey(q)
	if cached, ok := g.cache.Get(ctx, key); ok {
		return cached.withURL()
	}
	if g.apiKey == "" {
		return GifResult{}
	}

	// The fetch is shared by every caller waiting on key, so it must outlive
	// the request that happened to start it.
	v, err, _ := g.group.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		res, err := g.fetch(fetchCtx, q)
		if err != nil {
			return GifResult{}, err
		}
		g.cache.Set(fetchCtx, key, res)
		return res, nil
	})
	if err != nil {
		g.log.Warn("gif lookup failed", "query", q, "error", err)
		return GifResult{}
	}
	return v.(GifResult).withURL()
}

type giphyImage struct {
	URL    string `json:"url"`
	Width  string `json:"width"`
	Height string `json:"height"`
}

type giphyResponse struct {
	Data []struct {
		Images map[string]giphyImage `json:"images"`
	} `json:"data"`
}

var (
	gifRenditions   = []string{"downsized_medium", "downsized", "original", "preview_gif", "fixed_height"}
	gifSizes        = []string{"downsized_medium", "downsized", "original"}
	stillRenditions = []string{"downsized_still", "original_still", "fixed_height_still"}
)

func (g *GifLookup) fetch(ctx context.Context, q string) (GifResult, error) {
	params := url.Values{}
	params.Set("api_key", g.apiKey)
	params.Set("q", q)
	params.Set("limit", "1")
	params.Set("rating", "g")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return GifResult{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return GifResult{}, fmt.Errorf("giphy request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return GifResult{}, fmt.Errorf("giphy status %d", resp.StatusCode)
	}

	var body giphyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GifResult{}, fmt.Errorf("giphy decode: %w", err)
	}
	var images map[string]giphyImage
	if len(body.Data) > 0 {
		images = body.Data[0].Images
	}

	return GifResult{
		Gif:    firstURL(images, gifRenditions),
		Still:  firstURL(images, stillRenditions),
		GifW:   firstDim(images, gifSizes, func(i giphyImage) string { return i.Width }),
		GifH:   firstDim(images, gifSizes, func(i giphyImage) string { return i.Height }),
		StillW: firstDim(images, stillRenditions, func(i giphyImage) string { return i.Width }),
		StillH: firstDim(images, stillRenditions, func(i giphyImage) string { return i.Height }),
	}, nil
}

func firstURL(images map[string]giphyImage, order []string) string {
	for _, name := range order {
		if u := images[name].URL; u != "" {
			return u
		}
	}
	return ""
}

func firstDim(images map[string]giphyImage, order []string, pick func(giphyImage) string) int {
	for _, name := range order {
		if n, err := strconv.Atoi(pick(images[name])); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
