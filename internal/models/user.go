package models

// User is a chat participant. Rows are provisioned lazily the first time a
// verified token names the username. Online mirrors live connection state.
type User struct {
	ID       int    `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Online   bool   `db:"online" json:"online"`
}
