package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angular/web-codegen-scorer/internal/errs"
)

func TestUserFacing(t *testing.T) {
	err := errs.NewUserFacing("no prompts configured for %q", "angular")
	require.True(t, errs.IsUserFacing(err))
	require.Equal(t, `no prompts configured for "angular"`, err.Error())

	wrapped := fmt.Errorf("starting run: %w", err)
	require.True(t, errs.IsUserFacing(wrapped))
}

func TestWrapUserFacing(t *testing.T) {
	cause := errors.New("file not found")
	err := errs.WrapUserFacing(cause, "loading environment %s", "env.yaml")
	require.ErrorIs(t, err, cause)
	require.Equal(t, "loading environment env.yaml: file not found", err.Error())
	require.False(t, errs.IsUserFacing(cause))
}
