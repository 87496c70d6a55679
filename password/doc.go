// Package password hashes and verifies account passwords.
//
// [Bcrypt] is the default hasher. [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] verifies either encoding so accounts hashed under an older
// scheme keep working after the primary hasher changes.
//
// Password policy beyond the byte bounds enforced here lives in the engine.
// This package never stores passwords and imports no other goEnroll package.
package password
