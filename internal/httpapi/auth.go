package httpapi

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/foundry-planner/pkg/types"
)

// Authenticator checks the admin key sent with writes against a bcrypt
// hash, or a plain password when no hash is configured. With neither, every
// write is allowed.
type Authenticator struct {
	hash  []byte
	plain string
}

func NewAuthenticator(bcryptHash, plain string) Authenticator {
	return Authenticator{hash: []byte(bcryptHash), plain: plain}
}

func (a Authenticator) Enabled() bool { return len(a.hash) > 0 || a.plain != "" }

func (a Authenticator) Check(r *http.Request) bool {
	key := r.Header.Get(types.AdminKeyHeader)
	switch {
	case len(a.hash) > 0:
		return key != "" && bcrypt.CompareHashAndPassword(a.hash, []byte(key)) == nil
	case a.plain != "":
		return subtle.ConstantTimeCompare([]byte(key), []byte(a.plain)) == 1
	default:
		return true
	}
}
