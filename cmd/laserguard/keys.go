package main

import (
	"fmt"
	"io"

	"github.com/micro-nova/laserguard/internal/auth"
)

// runKeyCommand handles --add-api-key and --revoke-api-key. It reports
// whether one of them was given, in which case the daemon exits afterwards.
func runKeyCommand(svc *auth.Service, add, revoke string, out io.Writer) (bool, error) {
	switch {
	case add != "" && revoke != "":
		return true, fmt.Errorf("--add-api-key and --revoke-api-key are exclusive")
	case add != "":
		key, err := svc.AddKey(add)
		if err != nil {
			return true, fmt.Errorf("cannot create api key: %w", err)
		}
		fmt.Fprintln(out, key)
		return true, nil
	case revoke != "":
		if err := svc.RevokeKey(revoke); err != nil {
			return true, fmt.Errorf("cannot revoke api key: %w", err)
		}
		fmt.Fprintf(out, "revoked api key %q\n", revoke)
		return true, nil
	}
	return false, nil
}
