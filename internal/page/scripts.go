package page

import (
	_ "embed"
)

// Routines executed inside the tab's page context.

//go:embed scripts/capture.js
var CaptureScript string

//go:embed scripts/deliver.js
var DeliverScript string
