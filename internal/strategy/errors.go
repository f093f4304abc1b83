package strategy

import xerrors "Recipe-Chain/internal/errors"

const (
	CodeSenderNotOwner         xerrors.Code = "STORAGE_SENDER_NOT_OWNER"
	CodeNoAuthToCreateStrategy xerrors.Code = "NO_AUTH_TO_CREATE_STRATEGY"
	CodeNoAuthToCreateBundle   xerrors.Code = "NO_AUTH_TO_CREATE_BUNDLE"
	CodeDiffTriggersInBundle   xerrors.Code = "DIFF_TRIGGERS_IN_BUNDLE"
	CodeStrategyNotFound       xerrors.Code = "STRATEGY_NOT_FOUND"
	CodeBundleNotFound         xerrors.Code = "BUNDLE_NOT_FOUND"
	CodeEmptyBundle            xerrors.Code = "EMPTY_BUNDLE"
	CodeInvalidStrategy        xerrors.Code = "INVALID_STRATEGY"
	CodeBundleIndexOutOfRange  xerrors.Code = "BUNDLE_INDEX_OUT_OF_RANGE"
)

func init() {
	for code, attr := range map[xerrors.Code]xerrors.Attributes{
		CodeSenderNotOwner:         {Message: "sender is not the storage owner", Severity: xerrors.SeverityWarning, Category: xerrors.CategoryAuthorization},
		CodeNoAuthToCreateStrategy: {Message: "strategy creation is closed to the public", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryAuthorization},
		CodeNoAuthToCreateBundle:   {Message: "bundle creation is closed to the public", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryAuthorization},
		CodeDiffTriggersInBundle:   {Message: "bundle strategies declare different triggers", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryStructural},
		CodeStrategyNotFound:       {Message: "strategy not found", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryIntegrity},
		CodeBundleNotFound:         {Message: "bundle not found", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryIntegrity},
		CodeEmptyBundle:            {Message: "bundle has no strategies", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryStructural},
		CodeInvalidStrategy:        {Message: "strategy actions and param mapping disagree", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryStructural},
		CodeBundleIndexOutOfRange:  {Message: "strategy index outside bundle", Severity: xerrors.SeverityInfo, Category: xerrors.CategoryIntegrity},
	} {
		xerrors.Register(code, attr)
	}
}
