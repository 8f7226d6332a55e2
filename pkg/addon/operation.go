package addon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	gverrors "github.com/CenterForOpenScience/gravyvalet/pkg/errors"
)

// OperationMode declares how an operation executes.
type OperationMode string

// Execution modes
const (
	// ModeImmediate runs synchronously within the request.
	ModeImmediate OperationMode = "immediate"

	// ModeRedirect runs synchronously and returns a URL the caller 302s to.
	ModeRedirect OperationMode = "redirect"

	// ModeDeferred is enqueued to a background worker.
	ModeDeferred OperationMode = "deferred"
)

// RedirectResult is the result shape of every redirect-mode operation.
type RedirectResult struct {
	URL string `json:"url"`
}

// OperationDeclaration is the static record for one addon operation:
// its name, capability tag, execution mode, and argument schema. Built once
// per interface at process start, immutable thereafter.
type OperationDeclaration struct {
	// Name is the operation name within its interface, e.g. "list_root_items".
	Name string

	// Capability is the single capability tag the operation requires.
	Capability Capabilities

	// Mode is the operation's execution mode.
	Mode OperationMode

	rawSchema string
	schema    *gojsonschema.Schema
	probe     func(imp any) bool
	invoke    func(ctx context.Context, imp any, args json.RawMessage) (any, error)
}

// ArgsSchema returns the JSON schema for the operation's argument object.
func (op *OperationDeclaration) ArgsSchema() json.RawMessage {
	return json.RawMessage(op.rawSchema)
}

// ImplementedBy reports whether the given implementation instance provides
// this operation, determined structurally via interface satisfaction.
func (op *OperationDeclaration) ImplementedBy(imp any) bool {
	return op.probe(imp)
}

// ValidateArgs checks an argument object against the operation's schema.
// Unknown keys are rejected; missing required keys fail.
func (op *OperationDeclaration) ValidateArgs(args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	result, err := op.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return gverrors.InvalidArguments("arguments are not a JSON object", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return gverrors.Newf(gverrors.KindInvalidArguments,
			"arguments do not match operation %s: %s", op.Name, strings.Join(details, "; "))
	}
	return nil
}

// Invoke validates args, binds them to the operation's typed signature, and
// calls the implementation method.
func (op *OperationDeclaration) Invoke(ctx context.Context, imp any, args json.RawMessage) (any, error) {
	if err := op.ValidateArgs(args); err != nil {
		return nil, err
	}
	if !op.probe(imp) {
		return nil, gverrors.Newf(gverrors.KindUnexpectedAddonError,
			"operation %s is not implemented by %T", op.Name, imp)
	}
	return op.invoke(ctx, imp, args)
}

// declareOperation builds an OperationDeclaration from an operation
// interface I, an argument struct A, and the call that bridges them.
// The schema is part of the declaration; binding rejects unknown keys and
// fills struct defaults.
func declareOperation[I any, A any](
	name string,
	capability Capabilities,
	mode OperationMode,
	rawSchema string,
	call func(ctx context.Context, imp I, args A) (any, error),
) OperationDeclaration {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(rawSchema))
	if err != nil {
		panic(fmt.Sprintf("operation %s: invalid argument schema: %v", name, err))
	}
	return OperationDeclaration{
		Name:       name,
		Capability: capability,
		Mode:       mode,
		rawSchema:  rawSchema,
		schema:     compiled,
		probe: func(imp any) bool {
			_, ok := imp.(I)
			return ok
		},
		invoke: func(ctx context.Context, imp any, rawArgs json.RawMessage) (any, error) {
			typed, ok := imp.(I)
			if !ok {
				return nil, gverrors.Newf(gverrors.KindUnexpectedAddonError,
					"operation %s is not implemented by %T", name, imp)
			}
			var args A
			if len(rawArgs) > 0 {
				decoder := json.NewDecoder(bytes.NewReader(rawArgs))
				decoder.DisallowUnknownFields()
				if err := decoder.Decode(&args); err != nil {
					return nil, gverrors.InvalidArguments("binding arguments", err)
				}
			}
			return call(ctx, typed, args)
		},
	}
}
