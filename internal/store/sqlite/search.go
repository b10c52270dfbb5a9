package sqlite

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/amaydixit11/pinsync/internal/core"
)

// searchDoc is the Bleve-indexed projection of an Entry: only the fields a
// user would search by. Entry.Data is opaque to the sync core and is not
// indexed; Value and Desc are analyzed as free text, while Path and Kind
// are indexed as whole keywords.
type searchDoc struct {
	Value string `json:"value"`
	Desc  string `json:"desc"`
	Path  string `json:"path"`
	Kind  string `json:"kind"`
}

// searchIndex wraps an in-memory Bleve index backing EntryFilter.Search.
// It is rebuilt from sqlite on every process start (Store.reindexAll):
// sqlite is the single source of truth, so keeping the index in memory
// and cheaply reconstructible avoids a second durable store to keep
// consistent across the tombstone/upsert paths.
type searchIndex struct {
	idx bleve.Index
}

func newMemorySearchIndex() (*searchIndex, error) {
	mapping := bleve.NewIndexMapping()

	valueField := bleve.NewTextFieldMapping()
	valueField.Analyzer = "standard"

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("value", valueField)
	docMapping.AddFieldMappingsAt("desc", valueField)
	docMapping.AddFieldMappingsAt("path", keywordField)
	docMapping.AddFieldMappingsAt("kind", keywordField)
	mapping.AddDocumentMapping("entry", docMapping)

	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, err
	}
	return &searchIndex{idx: idx}, nil
}

func (s *searchIndex) put(e core.Entry) error {
	doc := searchDoc{Value: e.Value, Path: e.Path, Kind: e.Kind.String()}
	if e.Desc != nil {
		doc.Desc = *e.Desc
	}
	return s.idx.Index(e.ID.String(), doc)
}

func (s *searchIndex) delete(id string) error {
	return s.idx.Delete(id)
}

// search returns matching entry ids ordered by relevance, capped at 100.
func (s *searchIndex) search(query string) ([]string, error) {
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = 100

	res, err := s.idx.Search(req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (s *searchIndex) Close() error {
	return s.idx.Close()
}
