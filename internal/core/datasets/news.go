package datasets

import (
	"github.com/JonMunkholm/graphload/internal/core"
)

func init() {
	core.Register(News())
}

// News returns the news archive dataset. Articles come from an NYT-style
// JSON Lines export; geo.csv holds the geocoded place names referenced by
// geo_facet.
func News() core.Dataset {
	return core.Dataset{
		Name:        "news",
		Description: "News articles and the places they mention",
		Kinds: []core.KindSpec{
			{
				Name: "geo", Label: "Geo", File: "geo.csv",
				Key:      []string{"name"},
				Optional: true,
				Fields: []core.FieldSpec{
					{Name: "name", Type: core.FieldText},
					{Name: "latitude", Type: core.FieldFloat},
					{Name: "longitude", Type: core.FieldFloat},
				},
			},
			{
				Name: "article", Label: "Article", File: "articles.jsonl",
				Key:       []string{"uri"},
				DependsOn: []string{"geo"},
				Fields: []core.FieldSpec{
					{Name: "uri", Type: core.FieldText},
					{Name: "headline", Property: "title", Type: core.FieldText, Required: true, Normalizer: jsonMember("main")},
					{Name: "abstract", Type: core.FieldText},
					{Name: "lead_paragraph", Type: core.FieldText},
					{Name: "web_url", Property: "url", Type: core.FieldText},
					{Name: "pub_date", Property: "published", Type: core.FieldDate},
					{Name: "section_name", Property: "section", Type: core.FieldText},
					{Name: "byline", Type: core.FieldText, Normalizer: jsonMember("original")},
					{Name: "word_count", Type: core.FieldInt},
					{Name: "des_facet", Property: "topics", Type: core.FieldList},
					{Name: "per_facet", Property: "people", Type: core.FieldList},
					{Name: "geo_facet", Property: "locations", Type: core.FieldList},
				},
			},
		},
		Relationships: []core.RelationshipSpec{
			{Kind: "LOCATED_IN", Source: "article", Target: "geo", Rule: core.DirectRule{Field: "locations", On: core.SourceSide}},
		},
	}
}
