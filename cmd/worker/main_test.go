package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gobd-ledger/internal/app"
	_ "github.com/odyssey-erp/gobd-ledger/testing"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
