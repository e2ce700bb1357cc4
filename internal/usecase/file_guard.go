package usecase

import (
	"context"
	"errors"
	"fmt"

	"go-screening-backend/pkg/security"
	"go-screening-backend/pkg/security/antivirus"
)

var (
	errFileRejected = errors.New("file rejected")
	errMalware      = errors.New("file failed malware scan")
)

// fileGuard runs the content checks shared by direct uploads and the parse
// step of presigned uploads.
type fileGuard struct {
	scanner antivirus.Scanner
	audit   *security.AuditLogger
}

func (g fileGuard) inspect(ctx context.Context, fileName string, data []byte) error {
	if v := security.ValidateResume(fileName, data); !v.Valid {
		g.audit.Log(ctx, security.SecurityEvent{
			Event:   security.EventUploadRejected,
			Details: map[string]interface{}{"file": fileName, "reason": v.Error, "mime": v.DetectedMIME},
		})
		return fmt.Errorf("%w: %s", errFileRejected, v.Error)
	}
	if g.scanner == nil {
		return nil
	}
	res := g.scanner.Scan(ctx, fileName, data)
	if res.Clean() {
		return nil
	}
	if res.Error != nil {
		return fmt.Errorf("%w: scanner %s: %v", errMalware, res.ScannerName, res.Error)
	}
	g.audit.Log(ctx, security.SecurityEvent{
		Event:   security.EventMalwareDetected,
		Details: map[string]interface{}{"file": fileName, "threat": res.ThreatName, "scanner": res.ScannerName},
	})
	return fmt.Errorf("%w: %s", errMalware, res.ThreatName)
}
