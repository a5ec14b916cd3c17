// Package migrations embeds the goose SQL migrations for the server schema.
package migrations

import "embed"

// Every column other than ids, versions, references and the login key holds
// ciphertext, so all of them are TEXT.
//
//go:embed *.sql
var Migrations embed.FS
