package models

// Principal identifies who triggered a report run.
type Principal struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

// SystemPrincipal is used for CLI runs and when API auth is disabled.
var SystemPrincipal = Principal{Subject: "system", Email: "system@alertreport.internal"}

func (p Principal) String() string {
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}
