package sshdriver

import "golang.org/x/crypto/ssh"

// legacyConfig returns an ssh.Config with legacy KEX/cipher/MAC algorithms
// prepended ahead of the library defaults, for device fleets too old to
// speak modern algorithms exclusively.
func legacyConfig() ssh.Config {
	cfg := ssh.Config{}
	cfg.SetDefaults()
	cfg.KeyExchanges = append([]string{
		"diffie-hellman-group1-sha1",
		"diffie-hellman-group14-sha1",
	}, cfg.KeyExchanges...)
	cfg.Ciphers = append([]string{
		"aes128-cbc",
		"3des-cbc",
	}, cfg.Ciphers...)
	cfg.MACs = append([]string{
		"hmac-sha1",
	}, cfg.MACs...)
	return cfg
}

// modernConfig returns the library's default algorithm preference, used
// when legacy mode is not requested.
func modernConfig() ssh.Config {
	cfg := ssh.Config{}
	cfg.SetDefaults()
	return cfg
}
