package knowledge

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// textIndex is the Bleve full-text index over entry content. Entries are
// stored canonically in SQLite; the index only holds what search needs.
type textIndex struct {
	index bleve.Index
}

// openIndex creates or opens the index at path. An empty path builds an
// in-memory index. A corrupted on-disk index is deleted and recreated;
// losing it only costs searchability of already pruned-from-index
// entries, never the entries themselves.
func openIndex(path string) (*textIndex, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory index: %w", err)
		}
		return &textIndex{index: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create knowledge index: %w", err)
		}
	} else if err != nil {
		log.Printf("[knowledge] WARNING: index at %s unreadable (%v), recreating", path, err)
		if idx != nil {
			idx.Close()
		}
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", rmErr)
		}
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate knowledge index: %w", err)
		}
	}
	return &textIndex{index: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	entryMapping := bleve.NewDocumentMapping()

	categoryField := bleve.NewTextFieldMapping()
	categoryField.Analyzer = keyword.Name
	categoryField.Store = true
	categoryField.Index = true
	entryMapping.AddFieldMappingsAt("category", categoryField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = false
	contentField.Index = true
	entryMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = entryMapping
	return indexMapping
}

func (t *textIndex) add(e Entry) error {
	doc := map[string]any{
		"category": e.Category,
		"content":  e.Content,
	}
	return t.index.Index(e.ID, doc)
}

// search returns entry ids ranked by relevance. An empty category
// searches all categories.
func (t *textIndex) search(query, category string, k int) ([]string, error) {
	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	var q = bleve.NewConjunctionQuery(matchQuery)
	if category != "" {
		catQuery := bleve.NewTermQuery(category)
		catQuery.SetField("category")
		q = bleve.NewConjunctionQuery(matchQuery, catQuery)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k

	res, err := t.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (t *textIndex) remove(ids []string) error {
	batch := t.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return t.index.Batch(batch)
}

func (t *textIndex) close() error {
	return t.index.Close()
}
