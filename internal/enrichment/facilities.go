package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"rapidresponse/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// FacilityIndexMapping is the index body for facility documents.
const FacilityIndexMapping = `{
	"mappings": {
		"properties": {
			"name":     {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
			"kind":     {"type": "keyword"},
			"address":  {"type": "text"},
			"phone":    {"type": "keyword"},
			"location": {"type": "geo_point"}
		}
	}
}`

type facilityDoc struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Address  string          `json:"address,omitempty"`
	Phone    string          `json:"phone,omitempty"`
	Location models.Location `json:"location"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string      `json:"_id"`
			Source facilityDoc `json:"_source"`
			Sort   []float64   `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// ElasticFacilitySource finds facilities with a geo_distance query.
type ElasticFacilitySource struct {
	client   *elasticsearch.Client
	index    string
	radiusKm float64
	limit    int
}

func NewElasticFacilitySource(client *elasticsearch.Client, index string, radiusKm float64, limit int) *ElasticFacilitySource {
	return &ElasticFacilitySource{client: client, index: index, radiusKm: radiusKm, limit: limit}
}

func buildFacilityQuery(loc models.Location, kind models.FacilityKind, radiusKm float64, limit int) map[string]interface{} {
	point := map[string]interface{}{"lat": loc.Lat, "lon": loc.Lon}
	return map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"kind": string(kind)}},
					map[string]interface{}{
						"geo_distance": map[string]interface{}{
							"distance": strconv.FormatFloat(radiusKm, 'f', -1, 64) + "km",
							"location": point,
						},
					},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{
				"_geo_distance": map[string]interface{}{
					"location": point,
					"order":    "asc",
					"unit":     "km",
				},
			},
		},
	}
}

func (s *ElasticFacilitySource) NearbyFacilities(ctx context.Context, loc models.Location, kind models.FacilityKind) ([]models.Facility, error) {
	body, err := json.Marshal(buildFacilityQuery(loc, kind, s.radiusKm, s.limit))
	if err != nil {
		return nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("facility search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("facility search: %s: %s", res.Status(), msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode facility search: %w", err)
	}

	out := make([]models.Facility, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		f := models.Facility{
			ID:       hit.ID,
			Name:     hit.Source.Name,
			Kind:     models.FacilityKind(hit.Source.Kind),
			Address:  hit.Source.Address,
			Phone:    hit.Source.Phone,
			Location: hit.Source.Location,
		}
		if len(hit.Sort) > 0 {
			d := hit.Sort[0]
			f.Distance = &d
		}
		out = append(out, f)
	}
	return out, nil
}

// EnsureFacilityIndex creates index with the facility mapping unless it exists.
func EnsureFacilityIndex(ctx context.Context, client *elasticsearch.Client, index string) (bool, error) {
	exists, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, client)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", index, err)
	}
	exists.Body.Close()
	if exists.StatusCode == 200 {
		return false, nil
	}

	res, err := esapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader([]byte(FacilityIndexMapping)),
	}.Do(ctx, client)
	if err != nil {
		return false, fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, fmt.Errorf("create index %s: %s", index, res.Status())
	}
	return true, nil
}

// IndexFacilities bulk loads facilities into index.
func IndexFacilities(ctx context.Context, client *elasticsearch.Client, index string, facilities []models.Facility) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, f := range facilities {
		meta := map[string]interface{}{"_index": index}
		if f.ID != "" {
			meta["_id"] = f.ID
		}
		if err := enc.Encode(map[string]interface{}{"index": meta}); err != nil {
			return err
		}
		doc := facilityDoc{
			Name:     f.Name,
			Kind:     string(f.Kind),
			Address:  f.Address,
			Phone:    f.Phone,
			Location: f.Location,
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := esapi.BulkRequest{Body: &buf, Refresh: "true"}.Do(ctx, client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %s", res.Status())
	}

	var summary struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&summary); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if summary.Errors {
		return fmt.Errorf("bulk index: some documents were rejected")
	}
	return nil
}
