// Package idgen draws the short random tokens used for group ids and
// node ids during a walk. These are never scheduler-assigned job ids;
// they only need to be collision-improbable within one workflow.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	tokenMin = 100000
	tokenMax = 999999
)

var tokenRange = big.NewInt(tokenMax - tokenMin + 1)

// Token draws a fresh six-digit token. Panics only if the system
// entropy source is broken, which crypto/rand treats as unrecoverable
// everywhere else in the standard library too.
func Token() string {
	n, err := rand.Int(rand.Reader, tokenRange)
	if err != nil {
		panic(fmt.Sprintf("idgen: entropy source failed: %v", err))
	}
	return fmt.Sprintf("%06d", tokenMin+n.Int64())
}
