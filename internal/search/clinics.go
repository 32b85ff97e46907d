package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/model"
)

// ClinicIndex is the public clinic directory. Only approved clinics are
// ever indexed and every query also filters on status.
type ClinicIndex interface {
	Index(ctx context.Context, clinic *model.Clinic) error
	Remove(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error)
}

type clinicIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewClinicIndex(cfg config.ElasticsearchConfig) (ClinicIndex, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}

	return NewClinicIndexWithClient(es, cfg.Index), nil
}

func NewClinicIndexWithClient(client *elasticsearch.Client, index string) ClinicIndex {
	return &clinicIndex{client: client, index: index}
}

func (i *clinicIndex) Index(ctx context.Context, clinic *model.Clinic) error {
	if clinic.Status != model.ClinicStatusApproved {
		return i.Remove(ctx, clinic.ID)
	}

	doc, err := json.Marshal(clinic)
	if err != nil {
		return fmt.Errorf("failed to marshal clinic: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: clinic.ID.String(),
		Body:       bytes.NewReader(doc),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to index clinic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

func (i *clinicIndex) Remove(ctx context.Context, id uuid.UUID) error {
	req := esapi.DeleteRequest{
		Index:      i.index,
		DocumentID: id.String(),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("failed to delete clinic: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (i *clinicIndex) Search(ctx context.Context, filter model.ClinicFilter, page model.Page) ([]*model.Clinic, int64, error) {
	var body bytes.Buffer
	if err := json.NewEncoder(&body).Encode(buildQuery(filter, page)); err != nil {
		return nil, 0, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.index),
		i.client.Search.WithBody(&body),
		i.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search clinics: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("elasticsearch error: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, 0, fmt.Errorf("failed to parse response: %w", err)
	}

	clinics := make([]*model.Clinic, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		var c model.Clinic
		if err := json.Unmarshal(hit.Source, &c); err != nil {
			return nil, 0, fmt.Errorf("failed to decode clinic: %w", err)
		}
		if c.Status != model.ClinicStatusApproved {
			continue
		}
		clinics = append(clinics, &c)
	}
	return clinics, r.Hits.Total.Value, nil
}

func buildQuery(filter model.ClinicFilter, page model.Page) map[string]interface{} {
	must := []interface{}{}
	if filter.Query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     filter.Query,
				"fields":    []string{"name^3", "specialties^2", "services", "description", "city"},
				"fuzziness": "AUTO",
			},
		})
	}

	filters := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": string(model.ClinicStatusApproved)}},
	}
	if filter.City != "" {
		filters = append(filters, map[string]interface{}{"match": map[string]interface{}{"city": filter.City}})
	}
	if filter.Specialty != "" {
		filters = append(filters, map[string]interface{}{"match": map[string]interface{}{"specialties": filter.Specialty}})
	}

	return map[string]interface{}{
		"from": page.Offset(),
		"size": page.Limit(),
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filters,
			},
		},
	}
}
