package recipe

import xerrors "Recipe-Chain/internal/errors"

const (
	CodeFLActionNotFirst       xerrors.Code = "FL_ACTION_NOT_FIRST"
	CodeTriggerNotActive       xerrors.Code = "TRIGGER_NOT_ACTIVE"
	CodeRecipeMalformed        xerrors.Code = "RECIPE_MALFORMED"
	CodeContinuationNotFound   xerrors.Code = "CONTINUATION_NOT_FOUND"
	CodeContinuationNotResumed xerrors.Code = "CONTINUATION_NOT_RESUMED"
)

func init() {
	xerrors.Register(CodeFLActionNotFirst, xerrors.Attributes{
		Message:  "flash loan action must be the first action",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryStructural,
	})
	xerrors.Register(CodeTriggerNotActive, xerrors.Attributes{
		Message:  "trigger not active",
		Severity: xerrors.SeverityInfo,
		Category: xerrors.CategoryPrecondition,
	})
	xerrors.Register(CodeRecipeMalformed, xerrors.Attributes{
		Message:  "recipe arrays do not line up",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeContinuationNotFound, xerrors.Attributes{
		Message:  "flash loan continuation not found",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
	xerrors.Register(CodeContinuationNotResumed, xerrors.Attributes{
		Message:  "flash loan returned without resuming the recipe",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAction,
	})
}
