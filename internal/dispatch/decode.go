package dispatch

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"

	"github.com/seantiz/inductor/internal/model"
)

// Decode resolves the declared message type and deserializes the payload
// into the matching request variant. Parsing is lenient: comments, trailing
// commas, unknown fields and mismatched key case are tolerated. A missing
// required section yields model.ErrMalformedRequest; an unrecognised type
// yields model.ErrUnknownType.
func Decode(msgType string, body []byte) (model.Request, error) {
	kind, err := model.ParseKind(msgType)
	if err != nil {
		return nil, err
	}

	std, err := hujson.Standardize(append([]byte(nil), body...))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", model.ErrMalformedRequest, kind, err)
	}

	switch kind {
	case model.KindWorkOrder:
		wo := &model.WorkOrder{}
		if err := json.Unmarshal(std, wo); err != nil {
			return nil, fmt.Errorf("%w: decode workorder: %v", model.ErrMalformedRequest, err)
		}
		if wo.RfcCI == nil {
			return nil, fmt.Errorf("%w: workorder without rfcCi", model.ErrMalformedRequest)
		}
		return wo, nil
	case model.KindActionOrder:
		ao := &model.ActionOrder{}
		if err := json.Unmarshal(std, ao); err != nil {
			return nil, fmt.Errorf("%w: decode actionorder: %v", model.ErrMalformedRequest, err)
		}
		if ao.CI == nil {
			return nil, fmt.Errorf("%w: actionorder without ci", model.ErrMalformedRequest)
		}
		return ao, nil
	}

	return nil, fmt.Errorf("%w: %q", model.ErrUnknownType, msgType)
}
