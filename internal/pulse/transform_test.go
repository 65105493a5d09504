package pulse

import (
	"encoding/json"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 8, 4, 12, 0, 0, 0, time.UTC)

func TestTransformGitHubLanguages(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"github_language_distribution": {
				"labels": ["Go", "Rust"],
				"datasets": [{
					"data": [42, 17],
					"backgroundColor": ["#00ADD8", "#DEA584"],
					"hoverData": [
						{"repositories": [{"name": "gin", "stars": 70000}]},
						{"repositories": []}
					]
				}]
			}
		},
		"created_at": "2025-08-04 07:29:31.201333+00"
	}`)

	snapshot := Transform(raw, fixedNow)
	languages := snapshot.GitHub.Languages
	if len(languages) != 2 {
		t.Fatalf("expected 2 languages, got %d", len(languages))
	}
	if languages[0].Name != "Go" || languages[0].Count != 42 || languages[0].Color != "#00ADD8" {
		t.Fatalf("unexpected first language: %+v", languages[0])
	}
	if len(languages[0].Repositories) != 1 || languages[0].Repositories[0].Name != "gin" {
		t.Fatalf("hover repositories not carried: %+v", languages[0].Repositories)
	}
	if languages[1].Repositories == nil {
		t.Fatalf("repositories must never be nil")
	}
}

func TestTransformProductHuntGraphShape(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"product_hunt_tag_connections": {
				"nodes": [{"id": "dev-tools", "name": "Developer Tools"}, {"id": "ai"}],
				"links": []
			}
		}
	}`)

	categories := Transform(raw, fixedNow).ProductHunt.Categories
	if len(categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(categories))
	}
	if categories[0].Name != "Developer Tools" {
		t.Fatalf("expected node name, got %q", categories[0].Name)
	}
	if categories[1].Name != "ai" {
		t.Fatalf("expected id fallback for unnamed node, got %q", categories[1].Name)
	}
}

func TestTransformProductHuntFlatShape(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"product_hunt_tag_connections": [
				{"name": "LaunchPad", "tagline": "Ship faster", "upvotes": 312}
			]
		}
	}`)

	categories := Transform(raw, fixedNow).ProductHunt.Categories
	if len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}
	if categories[0].Name != "LaunchPad" || categories[0].Upvotes != 312 || categories[0].Products != 1 {
		t.Fatalf("unexpected flat-shape category: %+v", categories[0])
	}
}

func TestTransformMissingSectionDegradesGracefully(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"news_word_cloud": {
				"keywords": [{"text": "AI", "value": 90}],
				"hot_topics": [{"topic": "AI regulation vote", "summary": "Parliament voted on AI rules."}]
			}
		},
		"created_at": "2025-08-04 07:29:31.201333+00"
	}`)

	snapshot := Transform(raw, fixedNow)
	if len(snapshot.ProductHunt.Categories) != 0 {
		t.Fatalf("missing product hunt section must yield an empty slice")
	}
	if len(snapshot.GitHub.Languages) != 0 {
		t.Fatalf("missing github section must yield an empty slice")
	}
	if len(snapshot.News.Articles) != 1 {
		t.Fatalf("present sections must still transform: %+v", snapshot.News)
	}
	if len(snapshot.Keywords.Keywords) != 1 {
		t.Fatalf("keywords section not transformed: %+v", snapshot.Keywords)
	}
}

func TestTransformMalformedDocument(t *testing.T) {
	snapshot := Transform(json.RawMessage(`not json at all`), fixedNow)
	if snapshot.GitHub.Languages == nil || snapshot.ProductHunt.Categories == nil ||
		snapshot.News.Articles == nil || snapshot.Keywords.Keywords == nil ||
		snapshot.Predictions.Predictions == nil {
		t.Fatalf("malformed document must yield empty slices, got %+v", snapshot)
	}
	if !snapshot.News.GeneratedAt.Equal(fixedNow) {
		t.Fatalf("expected now fallback for generated_at, got %v", snapshot.News.GeneratedAt)
	}
}

func TestTransformNewsArticles(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"news_word_cloud": {
				"keywords": [{"text": "chips", "value": 40}],
				"hot_topics": [{"topic": "New chips announced", "summary": "A fab opened."}]
			}
		}
	}`)

	news := Transform(raw, fixedNow).News
	if len(news.Articles) != 1 {
		t.Fatalf("expected 1 article, got %d", len(news.Articles))
	}
	article := news.Articles[0]
	if article.Title != "New chips announced" || article.Summary != "A fab opened." {
		t.Fatalf("unexpected article: %+v", article)
	}
	if article.URL != "#" || article.Source != "Signal News" {
		t.Fatalf("placeholder fields not applied: %+v", article)
	}
}

func TestTransformKeywordOverviewFromHotTopic(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"news_word_cloud": {
				"keywords": [
					{"text": "chips", "value": 40},
					{"text": "fusion", "value": 12}
				],
				"hot_topics": [{"topic": "New Chips Announced", "summary": "A fab opened."}]
			}
		}
	}`)

	keywords := Transform(raw, fixedNow).Keywords.Keywords
	if len(keywords) != 2 {
		t.Fatalf("expected 2 keywords, got %d", len(keywords))
	}
	if keywords[0].Overview != "A fab opened." {
		t.Fatalf("expected matching hot-topic summary, got %q", keywords[0].Overview)
	}
	if keywords[1].Overview != "An overview for fusion" {
		t.Fatalf("expected synthesized overview, got %q", keywords[1].Overview)
	}
}

func TestTransformPredictions(t *testing.T) {
	raw := json.RawMessage(`{
		"pulse_data": {
			"manifold_predictions_bubble_plot": {
				"datasets": [{
					"data": [
						{"label": "AGI by 2030?", "x": 0.37, "y": 12400, "category": "AI"},
						{"label": "Clamped", "x": 1.4, "y": 400, "category": "Misc"}
					]
				}]
			}
		}
	}`)

	predictions := Transform(raw, fixedNow).Predictions.Predictions
	if len(predictions) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(predictions))
	}
	if predictions[0].Probability != 37 || predictions[0].TraderInterest != 12 {
		t.Fatalf("unexpected scaling: %+v", predictions[0])
	}
	if predictions[1].Probability != 100 {
		t.Fatalf("probability not clamped: %+v", predictions[1])
	}
}
