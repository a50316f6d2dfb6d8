package remote

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/elskow/berth/internal/config"
)

// LoadSigner reads and parses the private key the run authenticates with.
// Called early by the local-tools check so a bad key fails before any
// remote contact.
func LoadSigner(keyPath string) (ssh.Signer, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh key %s: %w", keyPath, err)
	}
	return signer, nil
}

// ClientConfig builds the ssh client configuration for one round trip.
// With no known_hosts path configured the host key is not verified, which
// matches the interactive tool this replaces; point known_hosts_path at a
// file to pin the host.
func ClientConfig(cfg config.RemoteConfig) (*ssh.ClientConfig, error) {
	signer, err := LoadSigner(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts %s: %w", cfg.KnownHostsPath, err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}, nil
}
