package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp Response
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("command_error", "manifest invalid")
	require.NoError(t, err)

	var resp Response
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "command_error", resp.Error.Code)
	assert.Equal(t, "manifest invalid", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("all projections in sync")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "all projections in sync")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error("command_error", "ledger corrupt")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "error (command_error)")
	assert.Contains(t, buf.String(), "ledger corrupt")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("reading %s", "rules/example.md")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "reading rules/example.md")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestOutputFormatter_VerboseLogPrefersErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:    "json",
		Writer:    out,
		ErrWriter: diag,
		Verbose:   true,
	}

	formatter.VerboseLog("scanning %d rules", 3)

	assert.Empty(t, out.String(), "diagnostics must not corrupt the JSON stream")
	assert.Contains(t, diag.String(), "scanning 3 rules")
}

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := WrapExitError(ExitCommandError, "load manifest", base)

	assert.Equal(t, "load manifest: boom", err.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, base)

	plain := NewExitError(ExitFailure, "2 conflicts")
	assert.Equal(t, "2 conflicts", plain.Error())
	assert.Equal(t, ExitFailure, GetExitCode(plain))
}

func TestGetExitCodeDefaultsToFailure(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("untyped")))
}

func TestErrorCodeClassification(t *testing.T) {
	assert.Equal(t, "command_error", errorCode(NewExitError(ExitCommandError, "no root")))
	assert.Equal(t, "failure", errorCode(NewExitError(ExitFailure, "2 conflicts")))
	assert.Equal(t, "failure", errorCode(errors.New("untyped")))
}
