package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ExecutionRequest
		message string
	}{
		{"Valid", ExecutionRequest{Code: "print(1)", Language: "python"}, ""},
		{"EmptyCode", ExecutionRequest{Language: "python"}, "invalid source: code cannot be empty"},
		{"BlankCode", ExecutionRequest{Code: " \n\t", Language: "python"}, "invalid source: code cannot be empty"},
		{"BlankLanguage", ExecutionRequest{Code: "print(1)", Language: "  "}, "invalid source: language cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.message == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidSource)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestExecutionResultJSON(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		res := Succeeded("hello", 1500*time.Millisecond)
		data, err := json.Marshal(res)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, true, decoded["success"])
		assert.Equal(t, "hello", decoded["output"])
		assert.Nil(t, decoded["error"])
		assert.Contains(t, decoded, "error")
		assert.InDelta(t, 1500, decoded["executionTimeMillis"], 0)
		assert.NotEmpty(t, decoded["timestamp"])
	})

	t.Run("Failure", func(t *testing.T) {
		res := Failed("Execution error: boom", 0)
		data, err := json.Marshal(res)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, false, decoded["success"])
		assert.Nil(t, decoded["output"])
		assert.Equal(t, "Execution error: boom", decoded["error"])
		assert.InDelta(t, 0, decoded["executionTimeMillis"], 0)
	})
}

func TestErrorTypes(t *testing.T) {
	t.Run("CompileError", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", &CompileError{Output: "bad token"})
		assert.ErrorIs(t, err, ErrCompileFailure)
		assert.Equal(t, "wrapped: compilation failed: bad token", err.Error())
		assert.Equal(t, "compilation failed", (&CompileError{}).Error())
	})

	t.Run("ExitError", func(t *testing.T) {
		err := &ExitError{Code: 2, Output: "  partial\n"}
		assert.ErrorIs(t, err, ErrNonZeroExit)
		assert.Equal(t, "process exited with code 2: partial", err.Error())
		assert.Equal(t, "process exited with code 1", (&ExitError{Code: 1}).Error())
	})

	t.Run("IOFailure", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := ioFailure("create workspace", cause)
		assert.ErrorIs(t, err, ErrIOFailure)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "workspace i/o failure: create workspace: permission denied", err.Error())
	})
}
