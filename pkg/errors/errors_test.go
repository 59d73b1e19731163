package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/kgeval/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// New / Error()
// ─────────────────────────────────────────────────────────────────────────────

func TestNew_FieldsAreSetCorrectly(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		code    errors.ErrorCode
		message string
	}{
		{"malformed dataset", errors.ErrCodeDatasetMalformed, "bad label"},
		{"checkpoint missing", errors.ErrCodeCheckpointNotFound, "net-300.json missing"},
		{"margin range", errors.ErrCodeInvalidMarginRange, "start must be below end"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ae := errors.New(tc.code, tc.message)

			require.NotNil(t, ae)
			assert.Equal(t, tc.code, ae.Code)
			assert.Equal(t, tc.message, ae.Message)
			assert.Empty(t, ae.Detail)
			assert.Nil(t, ae.Cause)
			assert.Contains(t, ae.Stack, "errors_test.go")
		})
	}
}

func TestError_Format(t *testing.T) {
	t.Parallel()

	ae := errors.New(errors.ErrCodeDatasetMalformed, "invalid label")
	assert.Equal(t, "[DATA_002] invalid label", ae.Error())

	withDetail := ae.WithDetail("valid.txt:3")
	assert.Equal(t, "[DATA_002] invalid label: valid.txt:3", withDetail.Error())

	withCause := withDetail.WithCause(fmt.Errorf("strconv: bad"))
	assert.Equal(t, "[DATA_002] invalid label: valid.txt:3: strconv: bad", withCause.Error())

	// builders never mutate the receiver
	assert.Empty(t, ae.Detail)
	assert.Nil(t, withDetail.Cause)
}

func TestWithDetail_NilReceiver(t *testing.T) {
	t.Parallel()

	var ae *errors.AppError
	assert.Nil(t, ae.WithDetail("x"))
	assert.Nil(t, ae.WithCause(stderrors.New("x")))
}

// ─────────────────────────────────────────────────────────────────────────────
// Wrap
// ─────────────────────────────────────────────────────────────────────────────

func TestWrap_NilReturnsNil(t *testing.T) {
	t.Parallel()
	assert.Nil(t, errors.Wrap(nil, errors.ErrCodeInternal, "ignored"))
}

func TestWrap_PreservesCodeWhenUnknown(t *testing.T) {
	t.Parallel()

	inner := errors.New(errors.ErrCodeCheckpointMalformed, "bad json")
	outer := errors.Wrap(inner, errors.CodeUnknown, "load model")

	assert.Equal(t, errors.ErrCodeCheckpointMalformed, outer.Code)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestWrap_OverridesCode(t *testing.T) {
	t.Parallel()

	inner := stderrors.New("connection refused")
	outer := errors.Wrap(inner, errors.ErrCodeCacheError, "redis get")

	assert.Equal(t, errors.ErrCodeCacheError, outer.Code)
	assert.True(t, strings.HasSuffix(outer.Error(), "connection refused"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Chain helpers
// ─────────────────────────────────────────────────────────────────────────────

func TestIsCode_WalksChain(t *testing.T) {
	t.Parallel()

	root := errors.New(errors.ErrCodeDatasetNotFound, "train.txt missing")
	mid := errors.Wrap(root, errors.ErrCodeInternal, "load dataset")
	top := fmt.Errorf("validate: %w", mid)

	assert.True(t, errors.IsCode(top, errors.ErrCodeDatasetNotFound))
	assert.True(t, errors.IsCode(top, errors.ErrCodeInternal))
	assert.False(t, errors.IsCode(top, errors.ErrCodeCacheError))
	assert.False(t, errors.IsCode(nil, errors.ErrCodeInternal))
	assert.False(t, errors.IsCode(stderrors.New("plain"), errors.ErrCodeInternal))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsNotFound(errors.New(errors.ErrCodeCheckpointNotFound, "x")))
	assert.True(t, errors.IsNotFound(errors.Wrap(errors.New(errors.ErrCodeRunNotFound, "x"), errors.ErrCodeInternal, "y")))
	assert.False(t, errors.IsNotFound(errors.New(errors.ErrCodeDatasetMalformed, "x")))
}

func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, errors.CodeOK, errors.GetCode(nil))
	assert.Equal(t, errors.CodeUnknown, errors.GetCode(stderrors.New("plain")))
	assert.Equal(t, errors.ErrCodeNoExamples, errors.GetCode(errors.New(errors.ErrCodeNoExamples, "x")))
}

func TestHTTPStatusForCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusNotFound, errors.HTTPStatusForCode(errors.ErrCodeRunNotFound))
	assert.Equal(t, http.StatusBadRequest, errors.HTTPStatusForCode(errors.ErrCodeInvalidMarginRange))
	assert.Equal(t, http.StatusInternalServerError, errors.HTTPStatusForCode(errors.ErrCodeDimensionMismatch))
}

func TestModuleForCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "data", errors.ModuleForCode(errors.ErrCodeDatasetMalformed))
	assert.Equal(t, "model", errors.ModuleForCode(errors.ErrCodeDimensionMismatch))
	assert.Equal(t, "eval", errors.ModuleForCode(errors.ErrCodeNoExamples))
	assert.Equal(t, "unknown", errors.ModuleForCode(errors.CodeOK))
}
