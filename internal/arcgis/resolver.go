package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	logx "github.com/arcgis-mcp/server/pkg/logger"
)

// Resolver turns a layer name into a canonical URL and metadata using one of
// three lookup strategies against the ArcGIS platform. Every strategy returns
// a LookupResult; no failure escapes as an error or panic.
type Resolver struct {
	client *Client
}

func NewResolver(cfg Config) *Resolver {
	return &Resolver{client: NewClient(cfg)}
}

type featureServerInfo struct {
	Layers []LayerRef `json:"layers"`
}

type searchItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
	URL   string `json:"url"`
}

type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// LayerInfo implements the direct service lookup: fetch the feature service's
// layer list, scan for an exact case-sensitive name match (first match wins),
// then fetch that layer's full definition. The canonical URL of a match is
// {service endpoint}/{layer id}.
func (r *Resolver) LayerInfo(ctx context.Context, name string) LookupResult {
	endpoint := r.client.FeatureServerURL(name)

	var info featureServerInfo
	if err := r.client.getJSON(ctx, endpoint, nil, &info); err != nil {
		logx.Warn().Err(err).Str("layer", name).Str("endpoint", endpoint).Msg("Direct lookup failed")
		return failed(StrategyDirect, fmt.Sprintf("Failed to get layer '%s' from service.", name), endpoint, err)
	}

	for _, lyr := range info.Layers {
		if lyr.Name != name {
			continue
		}
		layerURL := fmt.Sprintf("%s/%d", endpoint, lyr.ID)
		var definition json.RawMessage
		if err := r.client.getJSON(ctx, layerURL, nil, &definition); err != nil {
			logx.Warn().Err(err).Str("layer", name).Str("endpoint", layerURL).Msg("Layer definition fetch failed")
			return failed(StrategyDirect, fmt.Sprintf("Failed to get layer '%s' from service.", name), endpoint, err)
		}
		return foundLayer(layerURL, definition)
	}

	return failed(StrategyDirect, fmt.Sprintf("Layer '%s' not found in service.", name), endpoint, nil)
}

// SearchByTitle implements the authenticated title search: query the portal
// content index for feature-layer items with the given title, take the first
// result as returned by the portal, and enumerate its sub-layer URLs. The
// portal session is authenticated when credentials are configured, anonymous
// otherwise.
func (r *Resolver) SearchByTitle(ctx context.Context, name string) LookupResult {
	endpoint := r.client.portalRestURL("/search")

	params := url.Values{}
	params.Set("q", fmt.Sprintf("title:%s AND type:\"Feature Layer\"", name))
	if r.client.hasCredentials() {
		token, err := r.client.generateToken(ctx)
		if err != nil {
			logx.Warn().Err(err).Str("layer", name).Msg("Portal authentication failed")
			return failed(StrategyTitleSearch, fmt.Sprintf("Failed to search for layer '%s'.", name), endpoint, err)
		}
		params.Set("token", token)
	}

	var sr searchResponse
	if err := r.client.getJSON(ctx, endpoint, params, &sr); err != nil {
		logx.Warn().Err(err).Str("layer", name).Str("endpoint", endpoint).Msg("Title search failed")
		return failed(StrategyTitleSearch, fmt.Sprintf("Failed to search for layer '%s'.", name), endpoint, err)
	}
	if len(sr.Results) == 0 {
		return failed(StrategyTitleSearch, fmt.Sprintf("No feature layer found with title '%s'.", name), endpoint, nil)
	}

	// First result only, in provider-returned order.
	raw := sr.Results[0]
	var item searchItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return failed(StrategyTitleSearch, fmt.Sprintf("Failed to search for layer '%s'.", name), endpoint, err)
	}

	layerURLs, err := r.itemLayerURLs(ctx, item)
	if err != nil {
		logx.Warn().Err(err).Str("item_id", item.ID).Msg("Sub-layer enumeration failed")
		return failed(StrategyTitleSearch, fmt.Sprintf("Failed to enumerate layers of item '%s'.", item.ID), item.URL, err)
	}

	return foundItem(item, layerURLs, raw)
}

// ListLayers implements the anonymous listing fallback: fetch the feature
// service by constructed URL and emit the id/name/type triple of each layer.
// An empty layer set is still a success.
func (r *Resolver) ListLayers(ctx context.Context, name string) LookupResult {
	endpoint := r.client.FeatureServerURL(name)

	var info featureServerInfo
	if err := r.client.getJSON(ctx, endpoint, nil, &info); err != nil {
		logx.Warn().Err(err).Str("service", name).Str("endpoint", endpoint).Msg("Layer listing failed")
		return failed(StrategyListing, fmt.Sprintf("Failed to list layers for service '%s'.", name), endpoint, err)
	}

	return foundListing(endpoint, info.Layers)
}

// Resolve applies the strategies in precedence order: title search first (it
// covers services not named after the layer), then the direct service lookup,
// then the anonymous listing. The first success wins; when every strategy
// fails the last failure is returned.
func (r *Resolver) Resolve(ctx context.Context, name string) LookupResult {
	result := r.SearchByTitle(ctx, name)
	if result.IsSuccess() {
		return result
	}
	if result = r.LayerInfo(ctx, name); result.IsSuccess() {
		return result
	}
	return r.ListLayers(ctx, name)
}

// itemLayerURLs fetches the feature service behind a portal item and returns
// the URL of each sub-layer, {item url}/{layer id}.
func (r *Resolver) itemLayerURLs(ctx context.Context, item searchItem) ([]string, error) {
	if item.URL == "" {
		return nil, nil
	}

	var info featureServerInfo
	if err := r.client.getJSON(ctx, item.URL, nil, &info); err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(info.Layers))
	for _, lyr := range info.Layers {
		urls = append(urls, fmt.Sprintf("%s/%d", item.URL, lyr.ID))
	}
	return urls, nil
}
