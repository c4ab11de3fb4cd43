package filter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"feedforwarder/internal/model"
)

func keywords(kws ...string) []model.Filter {
	filters := make([]model.Filter, 0, len(kws))
	for _, kw := range kws {
		filters = append(filters, model.Filter{SourceID: 1, Keyword: kw})
	}
	return filters
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		article model.Article
		filters []model.Filter
		want    bool
	}{
		{
			name:    "no filters passes everything",
			article: model.Article{Title: "anything", Summary: "whatever"},
			filters: nil,
			want:    true,
		},
		{
			name:    "keyword in title",
			article: model.Article{Title: "Rocket launch scheduled", Summary: "Details inside"},
			filters: keywords("launch"),
			want:    true,
		},
		{
			name:    "keyword in summary",
			article: model.Article{Title: "Weekly digest", Summary: "The launch window opens"},
			filters: keywords("launch"),
			want:    true,
		},
		{
			name:    "no keyword matches",
			article: model.Article{Title: "Python update", Summary: "New features"},
			filters: keywords("kubernetes", "launch"),
			want:    false,
		},
		{
			name:    "any keyword is enough",
			article: model.Article{Title: "Python update", Summary: "New features"},
			filters: keywords("kubernetes", "python"),
			want:    true,
		},
		{
			name:    "case insensitive",
			article: model.Article{Title: "LAUNCH day", Summary: ""},
			filters: keywords("Launch"),
			want:    true,
		},
		{
			name:    "unicode case folding",
			article: model.Article{Title: "Große Straße", Summary: ""},
			filters: keywords("GROSSE"),
			want:    true,
		},
		{
			name:    "substring inside a word",
			article: model.Article{Title: "Relaunched product", Summary: ""},
			filters: keywords("launch"),
			want:    true,
		},
		{
			name:    "keyword spanning title and summary",
			article: model.Article{Title: "Big", Summary: "news today"},
			filters: keywords("big news"),
			want:    true,
		},
		{
			name:    "escaped article text matches plain keyword",
			article: model.Article{Title: "Tom &amp; Jerry", Summary: ""},
			filters: keywords("tom & jerry"),
			want:    true,
		},
		{
			name:    "blank keyword matches everything",
			article: model.Article{Title: "Unrelated", Summary: ""},
			filters: keywords("kubernetes", "  "),
			want:    true,
		},
		{
			name:    "empty article with keyword",
			article: model.Article{},
			filters: keywords("launch"),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.filters).Match(tt.article)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchConcurrent(t *testing.T) {
	m := New(keywords("launch", "orbit"))

	var wg sync.WaitGroup
	results := make([]bool, 64)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := fmt.Sprintf("story %d", i)
			if i%2 == 0 {
				title += " about a launch"
			}
			results[i] = m.Match(model.Article{Title: title})
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if want := i%2 == 0; got != want {
			t.Errorf("article %d: got %v, want %v", i, got, want)
		}
	}
}
