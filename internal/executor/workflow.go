package executor

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/alan-mat/docchat/internal/api"
)

// Values with a meaning to the workflow itself. Every other value a node
// returns is passed on unchanged as an argument of the following nodes.
const (
	ValueQueryTransformed = "query_transformed"
	ValueContextDocs      = "context_docs"
	ValueReplaceContext   = "replace_context"
)

type WorkflowNode struct {
	executor Executor
	operator string
	args     map[string]any
}

func NewWorkflowNode(executor Executor, operator string, args map[string]any) WorkflowNode {
	return WorkflowNode{
		executor: executor,
		operator: operator,
		args:     args,
	}
}

// Workflow runs its nodes one after the other and stops at the first
// failing node.
type Workflow struct {
	identifier  string
	description string

	nodes []WorkflowNode
}

func NewWorkflow(identifier string, description string, nodes []WorkflowNode) *Workflow {
	return &Workflow{
		identifier:  identifier,
		description: description,
		nodes:       nodes,
	}
}

func (w *Workflow) Identifier() string  { return w.identifier }
func (w *Workflow) Description() string { return w.description }
func (w *Workflow) Len() int            { return len(w.nodes) }

func (w *Workflow) Execute(ctx context.Context, params *Params) *Result {
	slog.Info("executing workflow", "workflowId", w.identifier, "id", params.GetTaskID(), "nodes", len(w.nodes))

	params = params.Copy()
	values := make(map[string]any)

	for _, node := range w.nodes {
		if err := ctx.Err(); err != nil {
			return &Result{Name: w.identifier, Err: err, Values: values}
		}

		nodeParams := params.Copy()
		nodeParams.Operator = node.operator
		maps.Copy(nodeParams.Args, node.args)

		result := node.executor.Execute(ctx, nodeParams)
		if result.Err != nil {
			slog.Error("failed to execute node", "workflowId", w.identifier, "node", result.Name,
				"op", result.Operator, "err", result.Err)
			return &Result{
				Name:     w.identifier,
				Operator: result.Operator,
				Err: ErrNodeFailed{
					Workflow: w.identifier,
					Node:     result.Name,
					Operator: result.Operator,
					Err:      result.Err,
				},
				Values: values,
			}
		}

		params = mergeValues(params, result.Values)
		maps.Copy(values, result.Values)
	}

	delete(values, ValueReplaceContext)
	if docs, ok := params.Args[ValueContextDocs]; ok {
		values[ValueContextDocs] = docs
	}

	return &Result{
		Name:   w.identifier,
		Values: values,
	}
}

func mergeValues(params *Params, values map[string]any) *Params {
	for k, v := range values {
		switch k {
		case ValueReplaceContext:
		case ValueQueryTransformed:
			if q, ok := v.(string); ok && q != "" {
				params = params.WithQuery(q)
			}
		case ValueContextDocs:
			docs, ok := v.([]*api.ScoredDocument)
			if !ok {
				slog.Error("workflow error", "msg", "invalid type of context docs in result")
				continue
			}
			replace, _ := values[ValueReplaceContext].(bool)
			existing, _ := params.Args[ValueContextDocs].([]*api.ScoredDocument)
			if replace || existing == nil {
				params.Args[ValueContextDocs] = docs
			} else {
				params.Args[ValueContextDocs] = slices.Concat(existing, docs)
			}
		default:
			params.Args[k] = v
		}
	}
	return params
}
