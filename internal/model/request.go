package model

import (
	"fmt"
	"time"
)

// Kind identifies the request variant declared by a message's type property.
type Kind string

// Request kinds.
const (
	KindWorkOrder   Kind = "workorder"
	KindActionOrder Kind = "actionorder"
)

// ParseKind maps a declared message type onto a Kind. It fails with
// ErrUnknownType for anything other than the two known variants.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWorkOrder, KindActionOrder:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

func (k Kind) String() string { return string(k) }

// Search tag keys stamped onto requests.
const (
	TagEnqueueTS = "requestEnqueTs"
	TagDequeueTS = "requestDequeTs"
	TagQueueTime = "queueTime"
	TagRfcAction = "rfcAction"
)

// SearchTimestampLayout is the UTC layout used for enqueue/dequeue tags.
const SearchTimestampLayout = "2006-01-02T15:04:05.000"

// searchTimestampLayouts are tried in order when parsing a producer timestamp.
var searchTimestampLayouts = []string{
	SearchTimestampLayout,
	time.RFC3339Nano,
}

// FormatSearchTime renders t in the search tag layout.
func FormatSearchTime(t time.Time) string {
	return t.UTC().Format(SearchTimestampLayout)
}

// ParseSearchTime parses a search tag timestamp. Timestamps without a zone
// are UTC.
func ParseSearchTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range searchTimestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Request is the common view over work orders and action orders.
// A Request is owned by exactly one processing attempt.
type Request interface {
	Kind() Kind
	ClassName() string
	Action() string
	NsPath() string
	SearchTags() map[string]string
	PutSearchTag(key, value string)
}

// OrderBase carries the fields shared by both request variants.
type OrderBase struct {
	Tags StringMap `json:"searchTags,omitempty"`
}

// SearchTags returns the mutable tag map, allocating it if necessary.
func (b *OrderBase) SearchTags() map[string]string {
	if b.Tags == nil {
		b.Tags = make(StringMap)
	}
	return b.Tags
}

// PutSearchTag sets a single search tag.
func (b *OrderBase) PutSearchTag(key, value string) {
	b.SearchTags()[key] = value
}

// RfcCI is the configuration item change a work order applies.
type RfcCI struct {
	RfcID        int64     `json:"rfcId"`
	CIID         int64     `json:"ciId"`
	CIName       string    `json:"ciName"`
	CIClassName  string    `json:"ciClassName"`
	NsPath       string    `json:"nsPath"`
	RfcAction    string    `json:"rfcAction"`
	CIAttributes StringMap `json:"ciAttributes,omitempty"`
}

// WorkOrder is a configuration/state change request.
type WorkOrder struct {
	OrderBase
	DeploymentID int64                  `json:"deploymentId,omitempty"`
	RfcCI        *RfcCI                 `json:"rfcCi"`
	Config       StringMap              `json:"config,omitempty"`
	Payload      map[string]interface{} `json:"payLoad,omitempty"`
}

func (w *WorkOrder) Kind() Kind { return KindWorkOrder }

func (w *WorkOrder) ClassName() string {
	if w.RfcCI == nil {
		return ""
	}
	return w.RfcCI.CIClassName
}

func (w *WorkOrder) Action() string {
	if w.RfcCI == nil {
		return ""
	}
	return w.RfcCI.RfcAction
}

func (w *WorkOrder) NsPath() string {
	if w.RfcCI == nil {
		return ""
	}
	return w.RfcCI.NsPath
}

// CI is the configuration item an action order targets.
type CI struct {
	CIID         int64     `json:"ciId"`
	CIName       string    `json:"ciName"`
	CIClassName  string    `json:"ciClassName"`
	NsPath       string    `json:"nsPath"`
	CIAttributes StringMap `json:"ciAttributes,omitempty"`
}

// ActionOrder is an ad-hoc operational procedure request.
type ActionOrder struct {
	OrderBase
	ActionID    int64     `json:"actionId,omitempty"`
	ActionName  string    `json:"actionName"`
	ProcedureID int64     `json:"procedureId,omitempty"`
	CI          *CI       `json:"ci"`
	Config      StringMap `json:"config,omitempty"`
}

func (a *ActionOrder) Kind() Kind { return KindActionOrder }

func (a *ActionOrder) ClassName() string {
	if a.CI == nil {
		return ""
	}
	return a.CI.CIClassName
}

func (a *ActionOrder) Action() string { return a.ActionName }

func (a *ActionOrder) NsPath() string {
	if a.CI == nil {
		return ""
	}
	return a.CI.NsPath
}

var (
	_ Request = (*WorkOrder)(nil)
	_ Request = (*ActionOrder)(nil)
)
