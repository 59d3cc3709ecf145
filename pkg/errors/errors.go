// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Docrag Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeStoreBackendUnsupported   Code = "store.backend.unsupported"
	CodeStoreNotInitialized       Code = "store.client.not_initialized"
	CodeStoreBatchInvalid         Code = "store.batch.invalid_input"
	CodeStoreVectorInvalid        Code = "store.vector.invalid_input"
	CodeStoreFilterInvalid        Code = "store.filter.invalid_input"
	CodeStoreDimensionMismatch    Code = "store.collection.dimension_mismatch"
	CodeStoreDistanceMismatch     Code = "store.collection.distance_mismatch"
	CodeStoreCollectionNotFound   Code = "store.collection.not_found"
	CodeStoreUpstreamFailure      Code = "store.upstream.failure"
	CodeStoreUpstreamTimeout      Code = "store.upstream.timeout"
	CodeStoreUpstreamUnauthorized Code = "store.upstream.unauthorized"

	CodeChunkerOptionsInvalid Code = "chunker.options.invalid_value"

	CodeEmbedRequestInvalid  Code = "embed.request.invalid_input"
	CodeEmbedUpstreamFailure Code = "embed.upstream.failure"

	CodeAnswerUpstreamFailure Code = "answer.upstream.failure"

	CodeRetrievalInputInvalid Code = "retrieval.input.invalid_input"

	CodeSecretInvalidInput   Code = "secret.input.invalid_input"
	CodeSecretNotFound       Code = "secret.entry.not_found"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretResolveFailure Code = "secret.resolve.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid_input"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLISetupFailure Code = "cli.setup.failure"
	CodeCLIInputInvalid Code = "cli.input.invalid_input"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldCollection(value string) Attr {
	return Field("collection", value)
}

func FieldSource(value string) Attr {
	return Field("source", value)
}

func FieldBackend(value string) Attr {
	return Field("backend", value)
}

// FieldStatus records the HTTP status code returned by an upstream backend.
func FieldStatus(value int) Attr {
	return Field("upstream_status", value)
}

// FieldBody records the raw upstream response body for diagnostics.
// It travels as error context only and is never rendered to end users.
func FieldBody(value string) Attr {
	return Field("upstream_body", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsDimensionMismatch(err error) bool {
	return reason(CodeOf(err)) == "dimension_mismatch"
}

func IsDistanceMismatch(err error) bool {
	return reason(CodeOf(err)) == "distance_mismatch"
}

func IsConfiguration(err error) bool {
	code := CodeOf(err)
	return strings.HasPrefix(string(code), "config.") ||
		reason(code) == "not_initialized" ||
		reason(code) == "unauthorized" ||
		reason(code) == "unsupported"
}

func IsTimeout(err error) bool {
	return reason(CodeOf(err)) == "timeout"
}

func IsUpstreamFailure(err error) bool {
	return strings.Contains(string(CodeOf(err)), "upstream")
}

// IsRetryable reports whether the error is a transient upstream failure
// worth retrying: timeouts, transport-level failures, and 5xx responses.
// 4xx responses, validation and configuration errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	if !IsUpstreamFailure(err) || reason(CodeOf(err)) == "unauthorized" {
		return false
	}
	status, ok := FieldsOf(err)["upstream_status"].(int)
	if !ok {
		// Transport failure with no status (connection refused, EOF).
		return true
	}
	return status >= 500
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidInput(err) || IsDimensionMismatch(err) || IsDistanceMismatch(err):
		return http.StatusBadRequest
	case IsTimeout(err):
		return http.StatusGatewayTimeout
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
