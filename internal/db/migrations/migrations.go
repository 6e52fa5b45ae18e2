package migrations

import "embed"

// Migrations contiene los scripts SQL que aplica goose al arrancar.
//
//go:embed *.sql
var Migrations embed.FS
