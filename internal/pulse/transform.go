// Package pulse turns the backend's tech-pulse aggregate document into
// the five independent dashboard slices. The transform is pure: every
// section degrades to an empty slice on missing or malformed input, and
// no section failure aborts the others.
package pulse

import (
	"encoding/json"
	"math/rand"
	"strings"
	"time"
)

type Snapshot struct {
	GitHub      GitHubSlice      `json:"github"`
	ProductHunt ProductHuntSlice `json:"product_hunt"`
	News        NewsSlice        `json:"news"`
	Keywords    KeywordsSlice    `json:"keywords"`
	Predictions PredictionsSlice `json:"predictions"`
}

type GitHubSlice struct {
	Languages []Language `json:"languages"`
}

type Language struct {
	Name         string       `json:"name"`
	Count        int          `json:"count"`
	Color        string       `json:"color"`
	Repositories []Repository `json:"repositories"`
}

type Repository struct {
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Stars int    `json:"stars,omitempty"`
}

type ProductHuntSlice struct {
	Categories []Category `json:"categories"`
}

type Category struct {
	Name     string `json:"name"`
	Upvotes  int    `json:"upvotes"`
	Products int    `json:"products"`
}

type NewsSlice struct {
	Articles    []Article `json:"articles"`
	GeneratedAt time.Time `json:"generated_at"`
}

type Article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary"`
}

type KeywordsSlice struct {
	Keywords []Keyword `json:"keywords"`
}

type Keyword struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
	Trend     string `json:"trend"`
	Overview  string `json:"overview"`
}

type PredictionsSlice struct {
	Predictions []Prediction `json:"predictions"`
}

type Prediction struct {
	Question       string `json:"question"`
	Probability    int    `json:"probability"`
	TraderInterest int    `json:"trader_interest"`
	Category       string `json:"category"`
}

// rawAggregate mirrors the backend document. Sections are kept as raw
// JSON so one malformed section cannot fail the whole decode.
type rawAggregate struct {
	PulseData struct {
		GitHubLanguages json.RawMessage `json:"github_language_distribution"`
		ProductHunt     json.RawMessage `json:"product_hunt_tag_connections"`
		NewsWordCloud   json.RawMessage `json:"news_word_cloud"`
		Predictions     json.RawMessage `json:"manifold_predictions_bubble_plot"`
	} `json:"pulse_data"`
	CreatedAt string `json:"created_at"`
}

// Transform adapts one raw aggregate into the dashboard snapshot. The
// now argument supplies fallback timestamps, keeping the function
// deterministic under test.
func Transform(raw json.RawMessage, now time.Time) Snapshot {
	var aggregate rawAggregate
	_ = json.Unmarshal(raw, &aggregate)

	generatedAt := normalizeTimestamp(aggregate.CreatedAt, now)

	return Snapshot{
		GitHub:      transformGitHub(aggregate.PulseData.GitHubLanguages),
		ProductHunt: transformProductHunt(aggregate.PulseData.ProductHunt),
		News:        transformNews(aggregate.PulseData.NewsWordCloud, generatedAt, now),
		Keywords:    transformKeywords(aggregate.PulseData.NewsWordCloud),
		Predictions: transformPredictions(aggregate.PulseData.Predictions),
	}
}

func transformGitHub(raw json.RawMessage) GitHubSlice {
	var section struct {
		Labels   []string `json:"labels"`
		Datasets []struct {
			Data            []int    `json:"data"`
			BackgroundColor []string `json:"backgroundColor"`
			HoverData       []struct {
				Repositories []Repository `json:"repositories"`
			} `json:"hoverData"`
		} `json:"datasets"`
	}
	if err := json.Unmarshal(raw, &section); err != nil || len(section.Datasets) == 0 {
		return GitHubSlice{Languages: []Language{}}
	}

	dataset := section.Datasets[0]
	languages := make([]Language, 0, len(section.Labels))
	for index, label := range section.Labels {
		language := Language{Name: label, Repositories: []Repository{}}
		if index < len(dataset.Data) {
			language.Count = dataset.Data[index]
		}
		if index < len(dataset.BackgroundColor) {
			language.Color = dataset.BackgroundColor[index]
		}
		if index < len(dataset.HoverData) && dataset.HoverData[index].Repositories != nil {
			language.Repositories = dataset.HoverData[index].Repositories
		}
		languages = append(languages, language)
	}
	return GitHubSlice{Languages: languages}
}

// transformProductHunt tolerates both shapes this section has shipped
// with: the tag-connection graph (nodes/links) and the flat product
// list. The shape is resolved by inspecting which fields are present.
func transformProductHunt(raw json.RawMessage) ProductHuntSlice {
	if graph, ok := decodeProductGraph(raw); ok {
		return graph
	}
	if flat, ok := decodeProductList(raw); ok {
		return flat
	}
	return ProductHuntSlice{Categories: []Category{}}
}

func decodeProductGraph(raw json.RawMessage) (ProductHuntSlice, bool) {
	var section struct {
		Nodes []struct {
			Name string `json:"name"`
			ID   string `json:"id"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &section); err != nil || len(section.Nodes) == 0 {
		return ProductHuntSlice{}, false
	}

	categories := make([]Category, 0, len(section.Nodes))
	for _, node := range section.Nodes {
		name := node.Name
		if name == "" {
			name = node.ID
		}
		categories = append(categories, Category{
			Name: name,
			// The backend does not ship vote counts for graph nodes yet;
			// sizing values are synthetic placeholders.
			Upvotes:  rand.Intn(5000),
			Products: rand.Intn(100),
		})
	}
	return ProductHuntSlice{Categories: categories}, true
}

func decodeProductList(raw json.RawMessage) (ProductHuntSlice, bool) {
	var products []struct {
		Name    string `json:"name"`
		Tagline string `json:"tagline"`
		Upvotes int    `json:"upvotes"`
	}
	if err := json.Unmarshal(raw, &products); err != nil || len(products) == 0 {
		return ProductHuntSlice{}, false
	}

	categories := make([]Category, 0, len(products))
	for _, product := range products {
		categories = append(categories, Category{
			Name:     product.Name,
			Upvotes:  product.Upvotes,
			Products: 1,
		})
	}
	return ProductHuntSlice{Categories: categories}, true
}

type wordCloudSection struct {
	Keywords []struct {
		Text  string `json:"text"`
		Value int    `json:"value"`
	} `json:"keywords"`
	HotTopics []struct {
		Topic   string `json:"topic"`
		Summary string `json:"summary"`
	} `json:"hot_topics"`
}

func transformNews(raw json.RawMessage, generatedAt time.Time, now time.Time) NewsSlice {
	var section wordCloudSection
	if err := json.Unmarshal(raw, &section); err != nil {
		return NewsSlice{Articles: []Article{}, GeneratedAt: generatedAt}
	}

	articles := make([]Article, 0, len(section.HotTopics))
	for _, topic := range section.HotTopics {
		articles = append(articles, Article{
			Title:       topic.Topic,
			URL:         "#",
			Source:      "Signal News",
			PublishedAt: now.UTC(),
			Summary:     topic.Summary,
		})
	}
	return NewsSlice{Articles: articles, GeneratedAt: generatedAt}
}

func transformKeywords(raw json.RawMessage) KeywordsSlice {
	var section wordCloudSection
	if err := json.Unmarshal(raw, &section); err != nil {
		return KeywordsSlice{Keywords: []Keyword{}}
	}

	keywords := make([]Keyword, 0, len(section.Keywords))
	for _, keyword := range section.Keywords {
		overview := "An overview for " + keyword.Text
		for _, topic := range section.HotTopics {
			if strings.Contains(strings.ToLower(topic.Topic), strings.ToLower(keyword.Text)) {
				overview = topic.Summary
				break
			}
		}
		keywords = append(keywords, Keyword{
			Word:      keyword.Text,
			Frequency: keyword.Value,
			Trend:     "up",
			Overview:  overview,
		})
	}
	return KeywordsSlice{Keywords: keywords}
}

func transformPredictions(raw json.RawMessage) PredictionsSlice {
	var section struct {
		Datasets []struct {
			Data []struct {
				Label    string  `json:"label"`
				X        float64 `json:"x"`
				Y        float64 `json:"y"`
				Category string  `json:"category"`
			} `json:"data"`
		} `json:"datasets"`
	}
	if err := json.Unmarshal(raw, &section); err != nil || len(section.Datasets) == 0 {
		return PredictionsSlice{Predictions: []Prediction{}}
	}

	points := section.Datasets[0].Data
	predictions := make([]Prediction, 0, len(points))
	for _, point := range points {
		predictions = append(predictions, Prediction{
			Question:       point.Label,
			Probability:    clampPercent(int(point.X*100 + 0.5)),
			TraderInterest: int(point.Y/1000 + 0.5),
			Category:       point.Category,
		})
	}
	return PredictionsSlice{Predictions: predictions}
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}
