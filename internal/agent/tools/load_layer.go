package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/arcgis-mcp/server/internal/arcgis"
	logx "github.com/arcgis-mcp/server/pkg/logger"
)

const ToolLoadLayer = "load_arcGIS_layer"

// LayerResolver is the slice of the resolution service the layer-load tool
// depends on.
type LayerResolver interface {
	SearchByTitle(ctx context.Context, name string) arcgis.LookupResult
}

type LoadLayerInput struct {
	LayerName string `json:"layer_name"`
}

// LoadLayerOutput carries the tool outcome. On success the layer fields are
// set; on failure the resolver's failure payload is passed through.
type LoadLayerOutput struct {
	Status    arcgis.Status `json:"status"`
	Message   string        `json:"message,omitempty"`
	LayerName string        `json:"layer_name,omitempty"`
	LayerURL  string        `json:"layer_url,omitempty"`
	Detail    string        `json:"error,omitempty"`
	Endpoint  string        `json:"feature_server_url,omitempty"`
}

var loadLayerParams = map[string]*schema.ParameterInfo{
	"layer_name": {
		Type:     schema.String,
		Desc:     "The name of the geographic layer to load, for example 'Bozeman'.",
		Required: true,
	},
}

// NewLoadLayerTool builds the tool that resolves a named ArcGIS layer and
// returns its canonical URL so a client can load it onto a map.
func NewLoadLayerTool(resolver LayerResolver) *Entry {
	info := &schema.ToolInfo{
		Name:        ToolLoadLayer,
		Desc:        "Calls ArcGIS to load a specific geographic layer onto a map. Use this tool whenever the user asks to load, open, or show a named map layer.",
		ParamsOneOf: schema.NewParamsOneOfByParams(loadLayerParams),
	}

	handler := func(ctx context.Context, in *LoadLayerInput) (*LoadLayerOutput, error) {
		logx.Debug().Str("layer_name", in.LayerName).Msg("Resolving ArcGIS layer")

		result := resolver.SearchByTitle(ctx, in.LayerName)
		if !result.IsSuccess() {
			return &LoadLayerOutput{
				Status:   result.Status,
				Message:  result.Message,
				Detail:   result.Detail,
				Endpoint: result.Endpoint,
			}, nil
		}

		return &LoadLayerOutput{
			Status:    arcgis.StatusSuccess,
			Message:   fmt.Sprintf("Layer '%s' data loaded from ArcGIS.", in.LayerName),
			LayerName: in.LayerName,
			LayerURL:  result.ItemURL,
		}, nil
	}

	return &Entry{
		Info:   info,
		Params: loadLayerParams,
		Tool:   utils.NewTool(info, handler),
	}
}
