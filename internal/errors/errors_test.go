package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestWrap_PreservesAppErrorCode(t *testing.T) {
	base := New(CodeDatabaseError, "query failed")
	wrapped := Wrap(base, "loading snapshot")
	if GetCode(wrapped) != CodeDatabaseError {
		t.Errorf("code = %s, want %s", GetCode(wrapped), CodeDatabaseError)
	}
	if !stderrors.Is(wrapped, base) {
		t.Error("wrapped error must unwrap to its cause")
	}
}

func TestWrap_NilIsNil(t *testing.T) {
	if Wrap(nil, "nothing") != nil {
		t.Error("wrapping nil must stay nil")
	}
	if Wrapf(nil, "nothing %d", 1) != nil {
		t.Error("wrapping nil must stay nil")
	}
}

func TestWrapf_FormatsMessage(t *testing.T) {
	err := Wrapf(fmt.Errorf("timeout"), "vote for model %q failed", "gpt-4o")
	want := `vote for model "gpt-4o" failed: timeout`
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
	if GetCode(err) != CodeInternal {
		t.Errorf("plain cause must wrap as %s, got %s", CodeInternal, GetCode(err))
	}
}

func TestGetCode_PlainErrorIsInternal(t *testing.T) {
	if GetCode(fmt.Errorf("boom")) != CodeInternal {
		t.Errorf("plain error code = %s, want %s", GetCode(fmt.Errorf("boom")), CodeInternal)
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("connection refused")

	dbErr := DatabaseError("connect failed", cause)
	if dbErr.Code != CodeDatabaseError || !stderrors.Is(dbErr, cause) {
		t.Errorf("database error wrong: %+v", dbErr)
	}

	extErr := ExternalServiceError("alert webhook", cause)
	if extErr.Code != CodeExternalService || !stderrors.Is(extErr, cause) {
		t.Errorf("external service error wrong: %+v", extErr)
	}

	cfgErr := ConfigInvalid("RISK_LIMIT must be positive")
	if cfgErr.Code != CodeConfigInvalid {
		t.Errorf("config error code = %s", cfgErr.Code)
	}
}
