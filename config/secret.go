// ABOUTME: Fallback OAuth state secret for single-process setups
// ABOUTME: Generated once per process when no secret is configured
package config

import "crypto/rand"

var processSecret = func() []byte {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand unavailable: " + err.Error())
	}
	return b
}()
