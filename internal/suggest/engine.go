// Package suggest picks prompt suggestions for the chat sidebar.
package suggest

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const maxSuggestions = 3

// Engine is safe for concurrent use. Output depends only on its inputs and
// the random source.
type Engine struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns an Engine drawing from r. A nil r is seeded from the clock.
func New(r *rand.Rand) *Engine {
	if r == nil {
		now := uint64(time.Now().UnixNano())
		r = rand.New(rand.NewPCG(now, now>>17))
	}
	return &Engine{rnd: r}
}

// Pool returns a copy of the pool used for page, falling back to the home pool.
func Pool(page string) []string {
	pool, ok := pagePools[page]
	if !ok {
		pool = pagePools[defaultPage]
	}
	return append([]string(nil), pool...)
}

// Suggestions returns up to three prompts for page in random order.
func (e *Engine) Suggestions(page string) []string {
	return e.pick(Pool(page))
}

// ProjectSuggestions mixes prompts naming the project into the project pool.
func (e *Engine) ProjectSuggestions(title string) []string {
	if title == "" {
		return e.Suggestions("project")
	}
	candidates := []string{
		fmt.Sprintf("Tell me more about %s", title),
		fmt.Sprintf("What tech was used in %s?", title),
		fmt.Sprintf("What inspired %s?", title),
	}
	return e.pick(append(candidates, Pool("project")...))
}

// FollowUps scans the latest assistant text for known topics and proposes up
// to three prompts not already present in prior. It returns an empty slice
// when no topic matches.
func (e *Engine) FollowUps(latest string, prior []string) []string {
	lower := strings.ToLower(latest)
	seen := make(map[string]struct{}, len(prior))
	for _, p := range prior {
		seen[p] = struct{}{}
	}

	matched := []string{}
	for _, set := range keywordTable {
		if !strings.Contains(lower, set.keyword) {
			continue
		}
		for _, s := range set.suggestions {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			matched = append(matched, s)
		}
	}
	return e.pick(matched)
}

// Welcome returns a random heading for an empty conversation.
func (e *Engine) Welcome() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return welcomeHeadings[e.rnd.IntN(len(welcomeHeadings))]
}

func (e *Engine) pick(items []string) []string {
	e.mu.Lock()
	e.rnd.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	e.mu.Unlock()
	if len(items) > maxSuggestions {
		items = items[:maxSuggestions]
	}
	return items
}
