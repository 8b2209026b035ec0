package veaauth

import (
	"github.com/umarmf343/veaauth/internal/security"
	"github.com/umarmf343/veaauth/password"
)

type (
	SecurityReport = security.Report
	LockoutReport  = security.LockoutReport
)

// SecurityReport summarises the engine's effective security settings.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	c := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:     c.Production,
		AccessTTL:          c.JWT.AccessTTL,
		RefreshTTL:         c.JWT.RefreshTTL,
		AccessSecret:       c.JWT.AccessSecret,
		RefreshSecret:      c.JWT.RefreshSecret,
		DevSecrets:         []string{DevAccessTokenSecret, DevRefreshTokenSecret, DevEncryptionSecret},
		CipherSecret:       c.Cipher.Secret,
		BcryptCost:         c.Password.BcryptCost,
		RecommendedCost:    password.DefaultCost,
		MinPasswordLength:  c.Password.MinLength,
		HashUpgradeOnLogin: c.Password.UpgradeOnLogin,
		Lockout: LockoutReport{
			MaxAttempts:     c.Lockout.MaxAttempts,
			Window:          c.Lockout.Window,
			LockoutDuration: c.Lockout.LockoutDuration,
		},
		LegacyCipherSalt: e.cipher != nil && e.cipher.UsesLegacySalt(),
		AuditEnabled:     e.audit != nil,
	})
}
