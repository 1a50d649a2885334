package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeToolNotFound, "tool xyz not found")

	if err == nil {
		t.Fatal("New should return non-nil error")
	}

	if err.Code != ErrCodeToolNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeToolNotFound)
	}

	if err.Message != "tool xyz not found" {
		t.Errorf("Message = %v, want 'tool xyz not found'", err.Message)
	}

	if err.Underlying != nil {
		t.Error("Underlying should be nil for New error")
	}

	if len(err.Stack) == 0 {
		t.Error("Stack should be captured")
	}
}

func TestWrap(t *testing.T) {
	underlying := errors.New("original error")
	err := Wrap(underlying, ErrCodeStorageRead, "failed to read storage")

	if err == nil {
		t.Fatal("Wrap should return non-nil error")
	}

	if err.Underlying != underlying {
		t.Error("Underlying should be preserved")
	}

	if err.Code != ErrCodeStorageRead {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeStorageRead)
	}

	if !strings.Contains(err.Error(), "original error") {
		t.Error("Error string should include underlying error")
	}
}

func TestWrap_Nil(t *testing.T) {
	err := Wrap(nil, ErrCodeInternal, "test")
	if err != nil {
		t.Error("Wrap of nil should return nil")
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("root cause")
	err := Wrap(underlying, ErrCodeWorkspace, "workspace create failed")

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should see through the wrap")
	}
}

func TestWithContext(t *testing.T) {
	err := New(ErrCodeProcessFailed, "script exited non-zero").
		WithContext("exit_code", 3)

	if err.Context["exit_code"] != 3 {
		t.Errorf("Context[exit_code] = %v, want 3", err.Context["exit_code"])
	}

	if !strings.Contains(err.Error(), "exit_code: 3") {
		t.Errorf("Error string should include context, got %q", err.Error())
	}
}

func TestMissingArgument(t *testing.T) {
	err := MissingArgument("city")

	if err.Code != ErrCodeMissingArgument {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingArgument)
	}

	if got := Param(err); got != "city" {
		t.Errorf("Param = %q, want %q", got, "city")
	}

	// Param must survive an fmt wrap.
	wrapped := fmt.Errorf("render: %w", err)
	if got := Param(wrapped); got != "city" {
		t.Errorf("Param through wrap = %q, want %q", got, "city")
	}
}

func TestIsCode(t *testing.T) {
	err := New(ErrCodeToolExists, "duplicate")

	if !IsCode(err, ErrCodeToolExists) {
		t.Error("IsCode should match the error's own code")
	}

	if IsCode(err, ErrCodeToolNotFound) {
		t.Error("IsCode should not match a different code")
	}

	wrapped := fmt.Errorf("create: %w", err)
	if !IsCode(wrapped, ErrCodeToolExists) {
		t.Error("IsCode should look through fmt.Errorf wraps")
	}

	if IsCode(errors.New("plain"), ErrCodeToolExists) {
		t.Error("IsCode should reject plain errors")
	}

	if IsCode(nil, ErrCodeToolExists) {
		t.Error("IsCode should reject nil")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(nil); got != "" {
		t.Errorf("GetCode(nil) = %v, want empty", got)
	}

	if got := GetCode(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("GetCode(plain) = %v, want %v", got, ErrCodeInternal)
	}

	err := New(ErrCodeRecorder, "codegen failed")
	if got := GetCode(err); got != ErrCodeRecorder {
		t.Errorf("GetCode = %v, want %v", got, ErrCodeRecorder)
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrCodeInternal, "boom")
	trace := err.StackTrace()

	if !strings.Contains(trace, "Stack trace:") {
		t.Error("StackTrace should include header")
	}

	if !strings.Contains(trace, "TestStackTrace") {
		t.Errorf("StackTrace should include the calling test, got:\n%s", trace)
	}
}
