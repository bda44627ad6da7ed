// Package password owns password hashing and the composition policy.
//
// Two hashers are provided. [Bcrypt] is the default; [Argon2] writes argon2id
// PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Chain] verifies against whichever hasher recognises a stored hash, so the
// default can change without invalidating existing rows.
//
// [Policy] is a pure function of its configuration. It never stores or logs
// plaintext.
package password
