package www

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const adminCookie = "setstore_admin"

// sessionKey decodes the configured base64 secret, falling back to an
// ephemeral random key. A random key signs the admin out on every restart,
// which is fine for a single-operator status page.
func sessionKey(secret string) []byte {
	if secret != "" {
		if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) >= 32 {
			return key
		}
	}
	key := make([]byte, 32)
	rand.Read(key)
	return key
}

// authSessions tracks the admin login through a signed cookie.
type authSessions struct {
	cookies *sessions.CookieStore
}

func newAuthSessions(secret string) *authSessions {
	cs := sessions.NewCookieStore(sessionKey(secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &authSessions{cookies: cs}
}

func (a *authSessions) currentUser(r *http.Request) (string, bool) {
	sess, _ := a.cookies.Get(r, adminCookie)
	username, ok := sess.Values["username"].(string)
	return username, ok && username != ""
}

func (a *authSessions) signIn(w http.ResponseWriter, r *http.Request, username string) {
	sess, _ := a.cookies.Get(r, adminCookie)
	sess.Values["username"] = username
	sess.Save(r, w)
}

func (a *authSessions) signOut(w http.ResponseWriter, r *http.Request) {
	sess, _ := a.cookies.Get(r, adminCookie)
	delete(sess.Values, "username")
	sess.Options.MaxAge = -1
	sess.Save(r, w)
}

func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
