package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsComparesCodes(t *testing.T) {
	sentinel := New(CodeStorageFailure, "")
	err := fmt.Errorf("lookup: %w", New(CodeStorageFailure, "strategy 7 unreadable"))
	require.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, New(CodeTimeout, ""))
}

func TestErrorFormat(t *testing.T) {
	err := Wrap(CodeStorageFailure, stdErrors.New("disk full"), "写入订阅失败")
	assert.Equal(t, "[STORAGE_FAILURE] 写入订阅失败: disk full", err.Error())
	assert.Equal(t, "写入订阅失败", err.Message())
	assert.Equal(t, "[INVALID_ARGUMENT] invalid argument", New(CodeInvalidArgument, "").Error())
}

func TestRegisterFillsCategoryDefaults(t *testing.T) {
	const code Code = "TEST_TRIGGER_NOT_MET"
	Register(code, Attributes{Message: "not yet", Category: CategoryPrecondition})

	err := Wrap(code, stdErrors.New("boom"), "", WithMetadata("index", "2"))
	assert.Equal(t, "not yet", err.Message())
	assert.Equal(t, CategoryPrecondition, CategoryOf(err))
	assert.Equal(t, SeverityInfo, SeverityOf(err))
	assert.False(t, RetryableError(err))
	assert.False(t, ShouldAlert(err))

	coded, ok := From(fmt.Errorf("outer: %w", err))
	require.True(t, ok)
	assert.Equal(t, map[string]string{"index": "2"}, coded.Metadata())
}

func TestRegisteredFlagsOnlyTighten(t *testing.T) {
	const code Code = "TEST_INFRA_QUIET"
	Register(code, Attributes{Severity: SeverityWarning, Category: CategoryInfrastructure})
	err := New(code, "")
	assert.Equal(t, SeverityWarning, SeverityOf(err))
	assert.True(t, RetryableError(err), "infrastructure failures are always retryable")
	assert.True(t, ShouldAlert(err))
}

func TestDisposition(t *testing.T) {
	Register("TEST_D_PRECONDITION", Attributes{Category: CategoryPrecondition, Retryable: true})
	Register("TEST_D_INTEGRITY", Attributes{Category: CategoryIntegrity})
	Register("TEST_D_ACTION", Attributes{Category: CategoryAction})
	Register("TEST_D_ACTION_ALERT", Attributes{Category: CategoryAction, Alert: true})

	cases := map[string]struct {
		err  error
		want Disposition
	}{
		"precondition wins over retryable": {New("TEST_D_PRECONDITION", ""), DispositionSkip},
		"infrastructure":                   {New(CodeStorageFailure, ""), DispositionRetry},
		"plain error":                      {stdErrors.New("socket closed"), DispositionRetry},
		"integrity":                        {New("TEST_D_INTEGRITY", ""), DispositionAlert},
		"action":                           {New("TEST_D_ACTION", ""), DispositionFail},
		"action with alert":                {New("TEST_D_ACTION_ALERT", ""), DispositionAlert},
		"structural":                       {New(CodeInvalidArgument, ""), DispositionFail},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, DispositionOf(tc.err))
		})
	}
}

func TestUnknownFallback(t *testing.T) {
	plain := stdErrors.New("plain")
	assert.Equal(t, CodeUnknown, CodeOf(plain))
	assert.Equal(t, CategoryInfrastructure, CategoryOf(plain))
	assert.Equal(t, SeverityCritical, SeverityOf(plain))
	assert.Equal(t, "unknown error", AttributesOf("NEVER_REGISTERED").Message)
	assert.Equal(t, CodeUnknown, (*Error)(nil).Code())
}
