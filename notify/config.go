package notify

import (
	"crypto/tls"
	"errors"
	"net/smtp"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// ServerConfig describes one SMTP relay. SendTimeout is in seconds.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	Connections        int    `yaml:"connections"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	AuthData           struct {
		Username string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
	SendTimeout int `yaml:"sendTimeout"`
}

// MailConfig is the mail section of the server configuration.
type MailConfig struct {
	// Transport is "smtppool" (default) or "emailpool".
	Transport string       `yaml:"transport"`
	Server    ServerConfig `yaml:"server"`
	From      string       `yaml:"from"`
	Sender    string       `yaml:"sender"`
	Subject   string       `yaml:"subject"`
}

// ReadMailConfig loads a MailConfig from a YAML file.
func ReadMailConfig(fname string) (MailConfig, error) {
	var cfg MailConfig
	raw, err := os.ReadFile(fname)
	if err != nil {
		return cfg, err
	}
	err = yaml.UnmarshalStrict(raw, &cfg)
	return cfg, err
}

// Address is host:port.
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

func (s ServerConfig) validate() error {
	if s.Host == "" {
		return errors.New("notify: smtp host is required")
	}
	if _, err := strconv.Atoi(s.Port); err != nil {
		return errors.New("notify: smtp port must be numeric")
	}
	return nil
}

func (s ServerConfig) auth() smtp.Auth {
	if s.AuthData.Username == "" && s.AuthData.Password == "" {
		return nil
	}
	return smtp.PlainAuth("", s.AuthData.Username, s.AuthData.Password, s.Host)
}

func (s ServerConfig) tlsConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: s.InsecureSkipVerify,
		ServerName:         s.Host,
	}
}

func (s ServerConfig) connections() int {
	if s.Connections <= 0 {
		return 1
	}
	return s.Connections
}

func (s ServerConfig) timeout() time.Duration {
	if s.SendTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.SendTimeout) * time.Second
}
