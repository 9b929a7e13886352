package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-workout-planner/internal/workout"
)

func samplePlan() workout.Plan {
	return workout.Plan{
		Weeks:       1,
		DaysPerWeek: 1,
		Plan: []workout.Day{{
			Day: "Day 1 - Strength",
			Workout: []workout.Exercise{
				{Exercise: "Goblet Squat", Sets: 3, Reps: "8–12"},
				{Exercise: "Push-up", VideoURL: "https://example.com/pushup"},
				{Exercise: "   "},
			},
		}},
	}
}

func TestEnrichAddsMissingLinks(t *testing.T) {
	out := Enrich(samplePlan())
	ex := out.Plan[0].Workout

	assert.Equal(t, "https://www.youtube.com/results?search_query=Goblet%20Squat%20proper%20form", ex[0].VideoURL)
	assert.Equal(t, "https://giphy.com/search/Goblet%20Squat", ex[0].GifSearch)
	assert.Equal(t, "https://example.com/pushup", ex[1].VideoURL)
	assert.Equal(t, "https://giphy.com/search/Push-up", ex[1].GifSearch)
	assert.Empty(t, ex[2].VideoURL)
	assert.Empty(t, ex[2].GifSearch)
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	in := samplePlan()
	_ = Enrich(in)
	assert.Empty(t, in.Plan[0].Workout[0].VideoURL)
}

func TestEnrichIsIdempotent(t *testing.T) {
	once := Enrich(samplePlan())
	assert.Equal(t, once, Enrich(once))
}

func TestEscapeEncodesReservedCharacters(t *testing.T) {
	assert.Equal(t, "Farmer's%20Carry%20%2B%20Hold%2F2", escape("Farmer's Carry + Hold/2"))
	assert.Equal(t, "Inverted%20Row%20(table)", escape("Inverted Row (table)"))
	assert.Equal(t, "Burpee!*%20x10", escape("Burpee!* x10"))
}

const giphyBody = `{"data":[{"images":{
	"downsized":{"url":"https://g/downsized.gif","width":"320","height":"240"},
	"original":{"url":"https://g/original.gif","width":"480","height":"360"},
	"original_still":{"url":"https://g/still.jpg","width":"480","height":"360"}
}}]}`

func giphyServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "g", r.URL.Query().Get("rating"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchPicksPreferredRenditions(t *testing.T) {
	var hits int32
	srv := giphyServer(t, giphyBody, &hits)
	lookup := NewGifLookup("key", WithGiphyEndpoint(srv.URL))

	res := lookup.Search(context.Background(), " Goblet Squat ")
	assert.True(t, res.OK)
	assert.Equal(t, "https://g/downsized.gif", res.Gif)
	assert.Equal(t, "https://g/downsized.gif", res.URL)
	assert.Equal(t, "https://g/still.jpg", res.Still)
	assert.Equal(t, 320, res.GifW)
	assert.Equal(t, 240, res.GifH)
	assert.Equal(t, 480, res.StillW)
	assert.Equal(t, 360, res.StillH)
}

func TestSearchCachesByLowercaseQuery(t *testing.T) {
	var hits int32
	srv := giphyServer(t, giphyBody, &hits)
	cache := NewMemoryCache()
	lookup := NewGifLookup("key", WithGiphyEndpoint(srv.URL), WithCache(cache))

	first := lookup.Search(context.Background(), "Plank")
	second := lookup.Search(context.Background(), "PLANK")
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, cache.Len())

	lookup.Search(context.Background(), "Side Plank")
	assert.Equal(t, 2, cache.Len())
}

func TestSearchEmptyResultIsCachedAndNotOK(t *testing.T) {
	var hits int32
	srv := giphyServer(t, `{"data":[]}`, &hits)
	cache := NewMemoryCache()
	lookup := NewGifLookup("key", WithGiphyEndpoint(srv.URL), WithCache(cache))

	assert.False(t, lookup.Search(context.Background(), "nothing").OK)
	assert.False(t, lookup.Search(context.Background(), "nothing").OK)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 1, cache.Len())
}

func TestSearchWithoutKeyOrQuery(t *testing.T) {
	lookup := NewGifLookup("")
	assert.Equal(t, GifResult{}, lookup.Search(context.Background(), "plank"))
	assert.Equal(t, GifResult{}, NewGifLookup("key").Search(context.Background(), "  "))
}

func TestSearchUpstreamFailureIsNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	cache := NewMemoryCache()
	lookup := NewGifLookup("key", WithGiphyEndpoint(srv.URL), WithCache(cache))

	res := lookup.Search(context.Background(), "plank")
	assert.False(t, res.OK)
	require.Equal(t, 0, cache.Len())
}

func TestSearchSurvivesStarterCancellation(t *testing.T) {
	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(reached) })
		<-release
		_, _ = w.Write([]byte(giphyBody))
	}))
	defer srv.Close()
	lookup := NewGifLookup("key", WithGiphyEndpoint(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	results := make([]GifResult, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = lookup.Search(ctx, "plank")
	}()

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("giphy was never called")
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = lookup.Search(context.Background(), "plank")
	}()
	cancel()
	close(release)
	wg.Wait()

	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)
}
