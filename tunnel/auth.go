package tunnel

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	ncerr "bgbsniff/internal/errors"
)

// defaultKeyNames are tried under ~/.ssh when no method was requested.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// readSecret prompts on stderr and reads a line from the terminal
// without echo.  Tests replace it.
var readSecret = func(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	return secret, err
}

// BuildAuthMethods assembles the gateway login methods in the order
// they are offered: key file, agent, password prompt.  When none was
// requested, the agent and the usual ~/.ssh keys are tried instead.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	type source struct {
		name  string
		on    bool
		build func() (ssh.AuthMethod, error)
	}
	sources := []source{
		{"key " + cfg.KeyPath, cfg.KeyPath != "", func() (ssh.AuthMethod, error) { return keyFileAuth(cfg.KeyPath) }},
		{"ssh-agent", cfg.UseAgent, agentAuth},
		{"password", cfg.PromptPass, func() (ssh.AuthMethod, error) { return passwordAuth(cfg) }},
	}

	var methods []ssh.AuthMethod
	for _, src := range sources {
		if !src.on {
			continue
		}
		m, err := src.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.name, err)
		}
		methods = append(methods, m)
	}

	if len(methods) == 0 {
		methods = implicitAuthMethods()
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no SSH authentication methods available, "+
			"use --ssh-key, --ssh-password or --ssh-agent", ncerr.ErrAuthFailed)
	}
	return methods, nil
}

// keyFileAuth loads a private key, asking for its passphrase if it is
// encrypted.
func keyFileAuth(path string) (ssh.AuthMethod, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if ncerr.As(err, &missing) {
		pass, perr := readSecret(fmt.Sprintf("Enter passphrase for %s: ", path))
		if perr != nil {
			return nil, fmt.Errorf("reading passphrase: %w", perr)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, pass)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

func passwordAuth(cfg *SSHConfig) (ssh.AuthMethod, error) {
	pass, err := readSecret(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
	if err != nil {
		return nil, err
	}
	return ssh.Password(string(pass)), nil
}

// implicitAuthMethods offers whatever the agent and the default key
// files provide.  Unusable sources are skipped silently.
func implicitAuthMethods() []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if m, err := agentAuth(); err == nil {
		out = append(out, m)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	for _, name := range defaultKeyNames {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if m, err := keyFileAuth(p); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// hostKeyCallback verifies the gateway against known_hosts when
// StrictHostKey is set and accepts any key otherwise.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // --strict-hostkey not given
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", path, err)
	}
	return cb, nil
}
