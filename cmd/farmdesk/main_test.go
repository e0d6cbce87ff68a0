package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/farmdesk/farmdesk/internal/app"
	_ "github.com/farmdesk/farmdesk/testing"
)

func TestMainReturnsInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())

	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"farmdesk"}
	main()
}
