package security

import "time"

// SigningAlgorithm is the only algorithm tokens are signed with.
const SigningAlgorithm = "HS256"

type LockoutReport struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
}

type Report struct {
	ProductionMode         bool
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	DistinctTokenSecrets   bool
	DevSecretsInUse        bool
	BcryptCost             int
	MinPasswordLength      int
	HashUpgradeOnLogin     bool
	Lockout                LockoutReport
	LegacyCipherSalt       bool
	RefreshRotationEnabled bool
	ReuseDetectionEnabled  bool
	AuditEnabled           bool
	// Warnings lists weaknesses that are allowed but worth fixing.
	Warnings []string
}

type ReportInput struct {
	ProductionMode     bool
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	AccessSecret       string
	RefreshSecret      string
	DevSecrets         []string
	CipherSecret       string
	BcryptCost         int
	RecommendedCost    int
	MinPasswordLength  int
	HashUpgradeOnLogin bool
	Lockout            LockoutReport
	LegacyCipherSalt   bool
	AuditEnabled       bool
}

func BuildReport(in ReportInput) Report {
	dev := false
	for _, s := range in.DevSecrets {
		if s == in.AccessSecret || s == in.RefreshSecret || s == in.CipherSecret {
			dev = true
			break
		}
	}

	r := Report{
		ProductionMode:         in.ProductionMode,
		SigningAlgorithm:       SigningAlgorithm,
		AccessTTL:              in.AccessTTL,
		RefreshTTL:             in.RefreshTTL,
		DistinctTokenSecrets:   in.AccessSecret != in.RefreshSecret,
		DevSecretsInUse:        dev,
		BcryptCost:             in.BcryptCost,
		MinPasswordLength:      in.MinPasswordLength,
		HashUpgradeOnLogin:     in.HashUpgradeOnLogin,
		Lockout:                in.Lockout,
		LegacyCipherSalt:       in.LegacyCipherSalt,
		RefreshRotationEnabled: true,
		ReuseDetectionEnabled:  true,
		AuditEnabled:           in.AuditEnabled,
	}

	if dev {
		r.Warnings = append(r.Warnings, "development secrets in use")
	}
	if !r.DistinctTokenSecrets {
		r.Warnings = append(r.Warnings, "access and refresh tokens share a secret")
	}
	if in.BcryptCost < in.RecommendedCost {
		r.Warnings = append(r.Warnings, "bcrypt cost below recommended")
	}
	if in.LegacyCipherSalt {
		r.Warnings = append(r.Warnings, "sensitive data cipher uses the legacy fixed salt")
	}
	if !in.AuditEnabled {
		r.Warnings = append(r.Warnings, "audit disabled")
	}
	return r
}
