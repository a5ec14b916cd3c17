package models

// User is an operator account. BadgeNum is the plaintext login key;
// CreatedAt holds ciphertext.
type User struct {
	ID           int64
	BadgeNum     string
	PasswordHash string
	CreatedAt    string
}
