package models

import "time"

const (
	// OutputFileName is the name every delivered file is saved under.
	OutputFileName = "html_code_loader_output.html"
	// OutputMIMEType is the blob type handed to the browser's download flow.
	OutputMIMEType = "text/plain"
)

// TabID is an opaque browser tab identifier (a DevTools target ID).
type TabID string

// Activation is one user-initiated trigger. An empty Tab means the
// currently active tab.
type Activation struct {
	Tab TabID
	At  time.Time
}

type CapturedMarkup struct {
	Tab        TabID
	URL        string
	HTML       string
	CapturedAt time.Time
}

type OutputFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// NewOutputFile builds the file offered for download from a capture.
func NewOutputFile(m CapturedMarkup) OutputFile {
	return OutputFile{
		Name:     OutputFileName,
		MIMEType: OutputMIMEType,
		Data:     []byte(m.HTML),
	}
}

// DeliveryReceipt is the raw response of the in-page delivery routine.
type DeliveryReceipt struct {
	Filename string `json:"filename"`
	Size     int    `json:"size"`
	Type     string `json:"type"`
}

type CaptureStatus string

const (
	StatusDelivered CaptureStatus = "delivered"
	StatusFailed    CaptureStatus = "failed"
)

type CaptureRecord struct {
	Tab        TabID
	URL        string
	Title      string
	Size       int
	Status     CaptureStatus
	Error      string
	CapturedAt time.Time
}
