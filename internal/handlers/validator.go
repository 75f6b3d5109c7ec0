package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "embed"

	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/association.json
var associationSchemaJSON string

//go:embed schema/close.json
var closeSchemaJSON string

// bodyValidator 用 JSON Schema 校验请求体的结构与类型，取值范围由业务层校验
type bodyValidator struct {
	schema *jsonschema.Schema
}

func newBodyValidator(name, source string) (*bodyValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &bodyValidator{schema: schema}, nil
}

// Validate 校验并返回带字段名的 400 错误
func (v *bodyValidator) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperrors.NewErrorWithErr(apperrors.ErrCodeBadRequest, errInvalidRequestBodyPrefix+"malformed JSON", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := deepestCause(verr)
			field := strings.TrimPrefix(leaf.InstanceLocation, "/")
			if field == "" {
				return apperrors.NewError(apperrors.ErrCodeBadRequest, errInvalidRequestBodyPrefix+leaf.Message)
			}
			return apperrors.NewFieldError(apperrors.ErrCodeBadRequest, field,
				fmt.Sprintf("%s%s: %s", errInvalidRequestBodyPrefix, field, leaf.Message))
		}
		return apperrors.NewErrorWithErr(apperrors.ErrCodeBadRequest, errInvalidRequestBodyPrefix+"schema validation failed", err)
	}
	return nil
}

func deepestCause(e *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	return e
}
