package arcgis

import "encoding/json"

// Status discriminates the two LookupResult variants.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Strategy identifies which lookup path produced a result.
type Strategy string

const (
	// StrategyDirect scans a feature service's layer list for an exact name match.
	StrategyDirect Strategy = "direct"
	// StrategyTitleSearch searches the portal content index by item title.
	StrategyTitleSearch Strategy = "title_search"
	// StrategyListing enumerates all layers of a feature service anonymously.
	StrategyListing Strategy = "listing"
)

// LayerRef is the id/name/type triple of a single layer within a feature service.
type LayerRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// LookupResult is the uniform outcome of every lookup strategy. Exactly one
// variant is populated: the success fields of the strategy that produced the
// result, or the failure fields. Construct only through the helpers below to
// keep that invariant.
type LookupResult struct {
	Status   Status   `json:"status"`
	Strategy Strategy `json:"strategy,omitempty"`

	// Success (direct)
	LayerURL  string          `json:"layer_url,omitempty"`
	LayerJSON json.RawMessage `json:"layer_json,omitempty"`

	// Success (title search)
	ItemID       string          `json:"item_id,omitempty"`
	ItemTitle    string          `json:"item_title,omitempty"`
	ItemType     string          `json:"item_type,omitempty"`
	ItemURL      string          `json:"item_url,omitempty"`
	LayerURLs    []string        `json:"layer_urls,omitempty"`
	ItemMetadata json.RawMessage `json:"item_metadata,omitempty"`

	// Success (listing)
	Layers []LayerRef `json:"layers,omitempty"`

	// Failure
	Message string `json:"message,omitempty"`
	Detail  string `json:"error,omitempty"`

	// Endpoint is populated on failures and on listing results, mirroring
	// the feature_server_url field of the upstream API responses.
	Endpoint string `json:"feature_server_url,omitempty"`
}

// IsSuccess reports whether the result is the success variant.
func (r LookupResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

func foundLayer(layerURL string, definition json.RawMessage) LookupResult {
	return LookupResult{
		Status:    StatusSuccess,
		Strategy:  StrategyDirect,
		LayerURL:  layerURL,
		LayerJSON: definition,
	}
}

func foundItem(item searchItem, layerURLs []string, metadata json.RawMessage) LookupResult {
	return LookupResult{
		Status:       StatusSuccess,
		Strategy:     StrategyTitleSearch,
		ItemID:       item.ID,
		ItemTitle:    item.Title,
		ItemType:     item.Type,
		ItemURL:      item.URL,
		LayerURLs:    layerURLs,
		ItemMetadata: metadata,
	}
}

func foundListing(endpoint string, layers []LayerRef) LookupResult {
	return LookupResult{
		Status:   StatusSuccess,
		Strategy: StrategyListing,
		Layers:   layers,
		Endpoint: endpoint,
	}
}

func failed(strategy Strategy, message, endpoint string, err error) LookupResult {
	r := LookupResult{
		Status:   StatusError,
		Strategy: strategy,
		Message:  message,
		Endpoint: endpoint,
	}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}
