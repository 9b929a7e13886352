package media

import (
	"net/url"
	"strings"

	"ai-workout-planner/internal/workout"
)

const (
	videoSearchURL = "https://www.youtube.com/results?search_query="
	gifSearchURL   = "https://giphy.com/search/"
)

// Enrich returns a copy of plan where every named exercise has a video and a
// GIF search link. Links already present are kept, so Enrich is idempotent.
func Enrich(plan workout.Plan) workout.Plan {
	out := plan.Clone()
	for i := range out.Plan {
		for j := range out.Plan[i].Workout {
			ex := &out.Plan[i].Workout[j]
			name := strings.TrimSpace(ex.Exercise)
			if name == "" {
				continue
			}
			if strings.TrimSpace(ex.VideoURL) == "" {
				ex.VideoURL = videoSearchURL + escape(name+" proper form")
			}
			if strings.TrimSpace(ex.GifSearch) == "" {
				ex.GifSearch = gifSearchURL + escape(name)
			}
		}
	}
	return out
}

// componentUnescaper turns url.QueryEscape output into URI-component form:
// spaces as %20 and the sub-delims !'()* left literal.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

func escape(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
