package kit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// Tool is a single callable operation exposed to agents.
type Tool interface {
	// Method is the stable identifier agents call, e.g. transfer_hbar_tool.
	Method() string
	// Name is a short human label.
	Name() string
	Description() string
	// Schema is the JSON schema of the arguments object.
	Schema() json.RawMessage
	Execute(ctx context.Context, rt *Runtime, args json.RawMessage) (*Result, error)
}

// Result is what a tool hands back to the agent.
type Result struct {
	HumanMessage string `json:"humanMessage"`
	Raw          any    `json:"raw,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Failed reports whether the tool could not complete.
func (r *Result) Failed() bool { return r != nil && r.Error != "" }

// JSON encodes the result for an agent framework.
func (r *Result) JSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}

// ErrorResult builds a failed result whose message reads "<failure>: <cause>".
func ErrorResult(failure string, err error) *Result {
	cause := "unknown error"
	if err != nil {
		cause = err.Error()
	}
	msg := cause
	if failure != "" {
		msg = failure + ": " + cause
	}
	return &Result{HumanMessage: msg, Error: msg}
}

// InvalidParameters marks input rejected before any ledger interaction.
type InvalidParameters struct {
	Problems []string
}

func (e *InvalidParameters) Error() string {
	return "Invalid parameters: " + strings.Join(e.Problems, "; ")
}

// Invalid builds an InvalidParameters error.
func Invalid(format string, args ...any) error {
	return &InvalidParameters{Problems: []string{fmt.Sprintf(format, args...)}}
}

// Handler implements a tool over decoded, validated parameters.
type Handler[P any] func(ctx context.Context, rt *Runtime, params P) (*Result, error)

type funcTool[P any] struct {
	method      string
	name        string
	description string
	failure     string
	schema      json.RawMessage
	fn          Handler[P]
}

// NewTool builds a Tool whose arguments decode into P. The JSON schema is
// reflected from P, arguments are decoded strictly and checked with the
// `validate` struct tags. Errors returned by fn are reported as
// "<failure>: <cause>" results.
func NewTool[P any](method, name, description, failure string, fn Handler[P]) Tool {
	return &funcTool[P]{
		method:      method,
		name:        name,
		description: description,
		failure:     failure,
		schema:      SchemaFor[P](),
		fn:          fn,
	}
}

func (t *funcTool[P]) Method() string          { return t.method }
func (t *funcTool[P]) Name() string            { return t.name }
func (t *funcTool[P]) Description() string     { return t.description }
func (t *funcTool[P]) Schema() json.RawMessage { return t.schema }

func (t *funcTool[P]) Execute(ctx context.Context, rt *Runtime, args json.RawMessage) (*Result, error) {
	var params P
	if err := DecodeParams(args, &params); err != nil {
		rt.Log().Debug("tool parameters rejected", "tool", t.method, "error", err)
		return &Result{HumanMessage: err.Error(), Error: err.Error()}, nil
	}

	result, err := t.fn(ctx, rt, params)
	if err != nil {
		var invalid *InvalidParameters
		if errors.As(err, &invalid) {
			return &Result{HumanMessage: invalid.Error(), Error: invalid.Error()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		rt.Log().Warn("tool execution failed", "tool", t.method, "error", err)
		return ErrorResult(t.failure, err), nil
	}
	if result == nil {
		result = &Result{HumanMessage: "Operation completed."}
	}
	return result, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// DecodeParams strictly decodes args into out and validates it. Empty args
// decode as an empty object.
func DecodeParams(args json.RawMessage, out any) error {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &InvalidParameters{Problems: []string{err.Error()}}
	}
	if dec.More() {
		return &InvalidParameters{Problems: []string{"unexpected data after arguments object"}}
	}

	if err := paramValidator().Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			var invalid *validator.InvalidValidationError
			if errors.As(err, &invalid) {
				return nil
			}
			return &InvalidParameters{Problems: []string{err.Error()}}
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
		return &InvalidParameters{Problems: problems}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// emptyObjectSchema is used for parameter types the reflector cannot describe.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// SchemaFor reflects the JSON schema of P. Only named struct types are
// expanded from the definitions table; struct{} and other unnamed types are
// reflected directly.
func SchemaFor[P any]() json.RawMessage {
	t := reflect.TypeOf((*P)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: t.Kind() == reflect.Struct && t.Name() != "",
	}
	s := r.ReflectFromType(t)
	if s == nil {
		return emptyObjectSchema
	}
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return emptyObjectSchema
	}
	return data
}
