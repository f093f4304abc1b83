package registry

import (
	xerrors "Recipe-Chain/internal/errors"
)

const (
	CodeSenderNotOwner             xerrors.Code = "SENDER_NOT_OWNER"
	CodeEntryAlreadyExists         xerrors.Code = "ENTRY_ALREADY_EXISTS"
	CodeEntryNonExistent           xerrors.Code = "ENTRY_NON_EXISTENT"
	CodeEntryNotInChange           xerrors.Code = "ENTRY_NOT_IN_CHANGE"
	CodeChangeNotReady             xerrors.Code = "CHANGE_NOT_READY"
	CodeAlreadyInContractChange    xerrors.Code = "ALREADY_IN_CONTRACT_CHANGE"
	CodeAlreadyInWaitPeriodChange  xerrors.Code = "ALREADY_IN_WAIT_PERIOD_CHANGE"
	CodeEmptyPrevAddr              xerrors.Code = "EMPTY_PREV_ADDR"
	CodeContractNotRegistered      xerrors.Code = "CONTRACT_NOT_REGISTERED"
	CodeImplementationNotFound     xerrors.Code = "IMPLEMENTATION_NOT_FOUND"
	CodeImplementationAddressInUse xerrors.Code = "IMPLEMENTATION_ADDRESS_IN_USE"
)

func init() {
	structural := func(msg string) xerrors.Attributes {
		return xerrors.Attributes{
			Message:  msg,
			Severity: xerrors.SeverityInfo,
			Category: xerrors.CategoryStructural,
		}
	}
	xerrors.Register(CodeSenderNotOwner, xerrors.Attributes{
		Message:  "sender is not the owner",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryAuthorization,
	})
	xerrors.Register(CodeEntryAlreadyExists, structural("registry entry already exists"))
	xerrors.Register(CodeEntryNonExistent, structural("registry entry does not exist"))
	xerrors.Register(CodeEntryNotInChange, structural("registry entry is not in change"))
	xerrors.Register(CodeChangeNotReady, structural("registry change wait period has not passed"))
	xerrors.Register(CodeAlreadyInContractChange, structural("registry entry already in contract change"))
	xerrors.Register(CodeAlreadyInWaitPeriodChange, structural("registry entry already in wait period change"))
	xerrors.Register(CodeEmptyPrevAddr, structural("registry entry has no previous address"))
	xerrors.Register(CodeImplementationAddressInUse, structural("implementation address already bound"))
	xerrors.Register(CodeContractNotRegistered, xerrors.Attributes{
		Message:  "contract id not registered",
		Severity: xerrors.SeverityWarning,
		Category: xerrors.CategoryIntegrity,
	})
	xerrors.Register(CodeImplementationNotFound, xerrors.Attributes{
		Message:  "no implementation bound to address",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
		Category: xerrors.CategoryIntegrity,
	})
}
