package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harborline/ibs/internal/app"
	_ "github.com/harborline/ibs/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
