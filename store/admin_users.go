package store

// AdminCredentials is the stored login for the local web UI. The table holds
// one row in practice; the first login creates it.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AdminCredentials returns the stored login for username.
func (db *DB) AdminCredentials(username string) (AdminCredentials, error) {
	var c AdminCredentials
	err := db.QueryRow(`SELECT username, password_hash FROM admin_users WHERE username = ?`, username).
		Scan(&c.Username, &c.PasswordHash)
	return c, err
}

// SeedAdmin creates the admin login. Fails if the username is taken.
func (db *DB) SeedAdmin(username, passwordHash string) error {
	_, err := db.Exec(`INSERT INTO admin_users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash)
	return err
}

// SetAdminPassword replaces the stored hash for username.
func (db *DB) SetAdminPassword(username, passwordHash string) error {
	_, err := db.Exec(`UPDATE admin_users SET password_hash = ? WHERE username = ?`,
		passwordHash, username)
	return err
}

// HasAdmin reports whether any admin login has been created yet.
func (db *DB) HasAdmin() (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM admin_users)`).Scan(&exists)
	return exists, err
}
