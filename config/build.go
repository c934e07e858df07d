package config

import (
	"fmt"
	"os"

	"github.com/quincelang/quince/pkg/quince/exec"
	"github.com/quincelang/quince/services/datasource"
	"github.com/quincelang/quince/services/file"
	"github.com/quincelang/quince/services/mail"
	"github.com/quincelang/quince/services/messaging"
)

// BuildServices constructs the collaborator set a validated config
// describes. Collaborators the config leaves out stay nil, except messaging,
// which always gets the in-process transport.
func BuildServices(cfg *Config) (exec.Services, error) {
	var svc exec.Services

	if len(cfg.Datasources) > 0 {
		reg := datasource.NewRegistry()
		for _, ds := range cfg.Datasources {
			src, err := datasource.Open(ds.Driver, ds.DSN)
			if err != nil {
				return svc, fmt.Errorf("datasource %q: %w", ds.Name, err)
			}
			reg.Add(ds.Name, src)
		}
		svc.Data = reg
	}

	switch cfg.Mail.Provider {
	case "":
	case "log":
		svc.Mail = &mail.Log{}
	case "mailgun":
		p, err := mail.NewMailgunProvider(cfg.Mail.Mailgun.APIKey, cfg.Mail.Mailgun.Domain, cfg.Mail.From, cfg.Mail.Mailgun.Region)
		if err != nil {
			return svc, fmt.Errorf("mail: %w", err)
		}
		svc.Mail = p
	case "resend":
		p, err := mail.NewResendProvider(cfg.Mail.Resend.APIKey, cfg.Mail.From)
		if err != nil {
			return svc, fmt.Errorf("mail: %w", err)
		}
		svc.Mail = p
	}

	switch cfg.Files.Store {
	case "", "local":
		dir := cfg.Files.Local
		if dir == "" {
			dir = cfg.Root
		}
		if dir != "" {
			svc.Files = file.NewLocal(dir)
		}
	case "sftp":
		sftpCfg := file.SFTPConfig{
			Host:           cfg.Files.SFTP.Host,
			Port:           cfg.Files.SFTP.Port,
			User:           cfg.Files.SFTP.User,
			Password:       cfg.Files.SFTP.Password,
			KnownHostsFile: cfg.Files.SFTP.KnownHosts,
			Root:           cfg.Files.SFTP.Root,
		}
		if cfg.Files.SFTP.KeyFile != "" {
			key, err := os.ReadFile(cfg.Files.SFTP.KeyFile)
			if err != nil {
				return svc, fmt.Errorf("files: reading sftp key: %w", err)
			}
			sftpCfg.PrivateKey = key
		}
		store, err := file.DialSFTP(sftpCfg)
		if err != nil {
			return svc, fmt.Errorf("files: %w", err)
		}
		svc.Files = store
	}

	svc.Messaging = messaging.NewMemory()

	return svc, nil
}
