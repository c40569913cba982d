package flow

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/atelier-run/atelier/pkg/domain"
	"github.com/atelier-run/atelier/pkg/registry"
)

// FlowData is the typed view of a Flow node's payload. The execution
// list is the ordered plan over Worker nodes; manager nodes are an
// informational set of orchestrator references, never executed.
type FlowData struct {
	ExecutionList []domain.ExecutionListItem `mapstructure:"executionList"`
	ManagerNodes  []string                   `mapstructure:"managerNodes"`
	IsRunning     bool                       `mapstructure:"isRunning"`
	TotalProgress int                        `mapstructure:"totalProgress"`
}

// DecodeFlowData reads the typed plan out of a Flow node payload.
func DecodeFlowData(data map[string]any) (FlowData, error) {
	var fd FlowData
	if data == nil {
		return fd, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fd,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fd, err
	}
	if err := dec.Decode(data); err != nil {
		return fd, fmt.Errorf("decode flow payload: %w", err)
	}
	sort.SliceStable(fd.ExecutionList, func(i, j int) bool {
		return fd.ExecutionList[i].Order < fd.ExecutionList[j].Order
	})
	return fd, nil
}

// patch renders the plan back into payload form. Items are stored as
// JSON-shaped maps so the registry's delete cascade can scrub them.
func (fd FlowData) patch() map[string]any {
	items := make([]any, 0, len(fd.ExecutionList))
	for i, item := range fd.ExecutionList {
		status := item.Status
		if status == "" {
			status = domain.StatusWaiting
		}
		items = append(items, map[string]any{
			"nodeId":   item.NodeID,
			"order":    i,
			"status":   string(status),
			"progress": item.Progress,
		})
	}
	managers := make([]any, 0, len(fd.ManagerNodes))
	for _, id := range fd.ManagerNodes {
		managers = append(managers, id)
	}
	return map[string]any{
		registry.DataKeyExecutionList: items,
		registry.DataKeyManagerNodes:  managers,
		"isRunning":                   fd.IsRunning,
		"totalProgress":               fd.TotalProgress,
	}
}

// totalProgress is the rounded mean of item progress. Items in a
// terminal state count as 100 whichever way they ended: an errored item
// is a finished item as far as plan progress goes. An empty plan is 0.
func (fd FlowData) totalProgress() int {
	if len(fd.ExecutionList) == 0 {
		return 0
	}
	sum := 0
	for _, item := range fd.ExecutionList {
		if item.Status.Terminal() {
			sum += 100
		} else {
			sum += item.Progress
		}
	}
	return (sum + len(fd.ExecutionList)/2) / len(fd.ExecutionList)
}

// done reports whether every item reached a terminal state.
func (fd FlowData) done() bool {
	if len(fd.ExecutionList) == 0 {
		return true
	}
	for _, item := range fd.ExecutionList {
		if !item.Status.Terminal() {
			return false
		}
	}
	return true
}
