package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/arcgis-mcp/server/internal/arcgis"
	logx "github.com/arcgis-mcp/server/pkg/logger"
)

const ToolCreateRecord = "create_layer_record"

type CreateRecordInput struct {
	LayerName string `json:"layer_name"`
}

type CreateRecordOutput struct {
	Status     arcgis.Status `json:"status"`
	RecordName string        `json:"record_name"`
	Message    string        `json:"message"`
}

var createRecordParams = map[string]*schema.ParameterInfo{
	"layer_name": {
		Type:     schema.String,
		Desc:     "The name of the layer to create a tracking record for.",
		Required: true,
	},
}

// NewCreateRecordTool builds the stub tool for the downstream record system.
// It performs no lookup: the record name is derived deterministically from
// the input until the real record API is wired in.
func NewCreateRecordTool() *Entry {
	info := &schema.ToolInfo{
		Name:        ToolCreateRecord,
		Desc:        "Creates a tracking record for a geographic layer in the downstream record system. Use this tool when the user asks to register or track a layer.",
		ParamsOneOf: schema.NewParamsOneOfByParams(createRecordParams),
	}

	handler := func(ctx context.Context, in *CreateRecordInput) (*CreateRecordOutput, error) {
		recordName := in.LayerName
		logx.Debug().Str("record_name", recordName).Msg("Synthesizing layer record")

		return &CreateRecordOutput{
			Status:     arcgis.StatusSuccess,
			RecordName: recordName,
			Message:    fmt.Sprintf("Record '%s' created for layer '%s'.", recordName, in.LayerName),
		}, nil
	}

	return &Entry{
		Info:   info,
		Params: createRecordParams,
		Tool:   utils.NewTool(info, handler),
	}
}

// NewQueryRegistry assembles the gateway's tool registry: the layer-load tool
// and the downstream record stub.
func NewQueryRegistry(resolver LayerResolver) (*Registry, error) {
	reg := NewRegistry()
	for _, e := range []*Entry{NewLoadLayerTool(resolver), NewCreateRecordTool()} {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
