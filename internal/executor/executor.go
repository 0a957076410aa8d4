package executor

import (
	"context"
	"log/slog"
	"maps"
	"reflect"

	"github.com/alan-mat/docchat/internal/transport"
	"github.com/alan-mat/docchat/internal/vector"
)

type Executor interface {
	Execute(ctx context.Context, params *Params) *Result
}

// OperatorFunc is a single operation of an executor.
type OperatorFunc func(context.Context, *Params) (map[string]any, error)

type Params struct {
	taskID    string
	query     string
	sessionID string

	Operator    string
	Transport   transport.Transport
	VectorStore vector.Store
	Args        map[string]any
}

type ParamOption func(*Params)

func NewParams(id string, query string, options ...ParamOption) *Params {
	ep := &Params{
		taskID:   id,
		query:    query,
		Operator: "",
		Args:     make(map[string]any),
	}
	for _, opt := range options {
		opt(ep)
	}
	return ep
}

func (p Params) GetTaskID() string {
	return p.taskID
}

func (p Params) GetQuery() string {
	return p.query
}

func (p Params) GetSessionID() string {
	return p.sessionID
}

// WithQuery returns a copy of the params with the query replaced.
func (p Params) WithQuery(q string) *Params {
	c := p.Copy()
	c.query = q
	return c
}

func (p Params) Copy() *Params {
	return &Params{
		taskID:      p.taskID,
		query:       p.query,
		sessionID:   p.sessionID,
		Operator:    p.Operator,
		Transport:   p.Transport,
		VectorStore: p.VectorStore,
		Args:        maps.Clone(p.Args),
	}
}

func (p Params) GetArg(argName string) (any, error) {
	arg, ok := p.Args[argName]
	if !ok {
		return nil, ErrArgMissing{ArgName: argName}
	}
	return arg, nil
}

// MessageStream opens the stream for the params' task.
func (p Params) MessageStream() (transport.MessageStream, error) {
	if p.Transport == nil {
		return nil, ErrNoTransport
	}
	return p.Transport.GetMessageStream(p.taskID)
}

// Status sends a progress line to the task's stream. It does nothing when
// the params carry no transport.
func (p Params) Status(ctx context.Context, step, content string) {
	ms, err := p.MessageStream()
	if err != nil {
		return
	}
	transport.SendStatus(ctx, ms, step, content)
}

func WithOperator(op string) ParamOption {
	return func(ep *Params) {
		ep.Operator = op
	}
}

func WithSession(id string) ParamOption {
	return func(ep *Params) {
		ep.sessionID = id
	}
}

func WithTransport(t transport.Transport) ParamOption {
	return func(ep *Params) {
		ep.Transport = t
	}
}

func WithVectorStore(vs vector.Store) ParamOption {
	return func(ep *Params) {
		ep.VectorStore = vs
	}
}

func WithArgs(args map[string]any) ParamOption {
	return func(ep *Params) {
		if args != nil {
			ep.Args = args
		}
	}
}

type Result struct {
	Name     string
	Operator string
	Err      error
	Values   map[string]any
}

func (res *Result) Get(valueName string) (any, bool) {
	val, ok := res.Values[valueName]
	return val, ok
}

// Dispatch runs the operator named in p on behalf of executor name.
// An empty operator selects defaultOp.
func Dispatch(ctx context.Context, name string, defaultOp string, ops map[string]OperatorFunc, p *Params) *Result {
	if p.Operator == "" {
		p.Operator = defaultOp
	}
	slog.Info("executing", "name", name, "op", p.Operator, "query", p.GetQuery(), "id", p.GetTaskID())

	opFunc, exists := ops[p.Operator]
	if !exists {
		return &Result{
			Name:     name,
			Operator: p.Operator,
			Err:      ErrOperatorNotFound{ExecutorName: name, OperatorName: p.Operator},
		}
	}

	vals, err := opFunc(ctx, p)
	return &Result{
		Name:     name,
		Operator: p.Operator,
		Err:      err,
		Values:   vals,
	}
}

func GetTypedArg[T any](p *Params, argName string) (T, error) {
	arg, err := p.GetArg(argName)
	if err != nil {
		return *new(T), err
	}

	typedArg, ok := arg.(T)
	if !ok {
		expectedType := reflect.TypeOf((*T)(nil)).Elem()
		receivedType := reflect.TypeOf(arg)

		received := "nil"
		if receivedType != nil {
			received = receivedType.String()
		}
		return *new(T), ErrInvalidArgumentType{
			Name:     argName,
			Expected: expectedType.String(),
			Received: received,
		}
	}

	return typedArg, nil
}

// GetOptionalArg is GetTypedArg that falls back to def when the argument
// is absent. A present argument of the wrong type is still an error.
func GetOptionalArg[T any](p *Params, argName string, def T) (T, error) {
	if _, ok := p.Args[argName]; !ok {
		return def, nil
	}
	return GetTypedArg[T](p, argName)
}

func GetTypedResult[T any](res *Result, argName string) (T, bool) {
	arg, ok := res.Get(argName)
	if !ok {
		return *new(T), false
	}

	typedArg, ok := arg.(T)
	return typedArg, ok
}
