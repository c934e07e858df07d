package file

import (
	"fmt"
	"io"
	"path"
	"sort"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTP is a Store over a remote SFTP host.
type SFTP struct {
	client    *sftp.Client
	sshClient *ssh.Client
	root      string
}

// SFTPConfig holds connection settings for DialSFTP.
type SFTPConfig struct {
	Host           string
	Port           int
	User           string
	Password       string // password auth when set
	PrivateKey     []byte // key auth when set; wins over password
	KnownHostsFile string // strict host-key checking when set
	Root           string // remote base directory, "" means the login dir
}

// DialSFTP connects and returns an SFTP store.
func DialSFTP(cfg SFTPConfig) (*SFTP, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("sftp host and user are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	var auth []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	} else {
		return nil, fmt.Errorf("sftp needs a password or private key")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	sshClient, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, port), &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", cfg.Host, err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp handshake: %w", err)
	}

	return &SFTP{client: client, sshClient: sshClient, root: cfg.Root}, nil
}

// Close shuts down the SFTP and SSH connections.
func (s *SFTP) Close() error {
	err := s.client.Close()
	if cerr := s.sshClient.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *SFTP) resolve(p string) string {
	if s.root == "" {
		return p
	}
	return path.Join(s.root, p)
}

// Read implements Store.
func (s *SFTP) Read(p string) ([]byte, error) {
	f, err := s.client.Open(s.resolve(p))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Write implements Store.
func (s *SFTP) Write(p string, data []byte) error {
	full := s.resolve(p)
	if dir := path.Dir(full); dir != "." && dir != "/" {
		if err := s.client.MkdirAll(dir); err != nil {
			return err
		}
	}
	f, err := s.client.Create(full)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// List implements Store.
func (s *SFTP) List(dir string) ([]string, error) {
	entries, err := s.client.ReadDir(s.resolve(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
