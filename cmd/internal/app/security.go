package app

import (
	"errors"
	"fmt"

	"idvault/cmd/security/sealer"
)

// ValidateSecurityConfig enforces the vault's key policy at startup.
//
// Without IDVAULT_REQUIRE_FIELD_KEY a bad key only surfaces as an encryption-config
// error on the first Create or RevealSecrets; with it, the process refuses to start.
// Validation goes through sealer.Config so the check matches what Seal/Open will do.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireFieldKey {
		return nil
	}

	if err := cfg.Sealer.Validate(); err != nil {
		var ke sealer.KeyError
		if errors.As(err, &ke) {
			return fmt.Errorf("security policy: IDVAULT_REQUIRE_FIELD_KEY=true but %s", ke.Reason)
		}
		return err
	}
	return nil
}
