// Package antivirus scans resume bytes before they are stored.
package antivirus

import "context"

type ScanResult struct {
	Infected    bool
	ThreatName  string
	ScannerName string
	// Error is set when the scan could not complete. Infected is then true
	// as well, so a caller that only checks Infected still rejects the file.
	Error error
}

// Clean reports a completed scan that found nothing.
func (r ScanResult) Clean() bool {
	return !r.Infected && r.Error == nil
}

type Scanner interface {
	Scan(ctx context.Context, filename string, data []byte) ScanResult
	Name() string
	Available(ctx context.Context) bool
}

// Disabled passes every file. It stands in when CLAMAV_ADDRESS is unset.
type Disabled struct{}

var _ Scanner = Disabled{}

func (Disabled) Scan(context.Context, string, []byte) ScanResult {
	return ScanResult{ScannerName: "disabled"}
}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Available(context.Context) bool { return true }
