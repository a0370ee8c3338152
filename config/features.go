package config

import "os"

type Features struct {
	AuthEnabled       bool
	TimeframesEnabled bool
	StrictDispatch    bool
	LedgerEnabled     bool
	LockEnabled       bool
	MetricsEnabled    bool
}

func LoadFeatures() Features {
	return Features{
		AuthEnabled:       os.Getenv("AUTH_ENABLED") == "true",
		TimeframesEnabled: os.Getenv("USE_TIMEFRAMES") == "true",
		StrictDispatch:    os.Getenv("STRICT_DISPATCH") == "true",
		LedgerEnabled:     os.Getenv("DATABASE_URL") != "",
		LockEnabled:       os.Getenv("REDIS_URL") != "",
		MetricsEnabled:    os.Getenv("METRICS_ENABLED") != "false",
	}
}
