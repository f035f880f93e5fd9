package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/mensylisir/xmguest/common"
)

var _ Host = (*BaseHost)(nil)

type BaseHost struct {
	Name              string        `yaml:"name,omitempty" json:"name,omitempty"`
	Address           string        `yaml:"address,omitempty" json:"address,omitempty"`
	Port              int           `yaml:"port,omitempty" json:"port,omitempty"`
	User              string        `yaml:"user,omitempty" json:"user,omitempty"`
	Password          string        `yaml:"password,omitempty" json:"password,omitempty"`
	PrivateKey        string        `yaml:"privateKey,omitempty" json:"privateKey,omitempty"`
	PrivateKeyPath    string        `yaml:"privateKeyPath,omitempty" json:"privateKeyPath,omitempty"`
	ConnectionTimeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Guests            []string      `yaml:"guests,omitempty" json:"guests,omitempty"`
}

func NewHost() *BaseHost {
	return &BaseHost{
		Port:              common.DefaultSSHPort,
		ConnectionTimeout: 30 * time.Second,
	}
}

func (b *BaseHost) GetName() string {
	return b.Name
}

func (b *BaseHost) SetName(name string) {
	b.Name = name
}

func (b *BaseHost) GetAddress() string {
	return b.Address
}

func (b *BaseHost) SetAddress(addr string) {
	b.Address = addr
}

func (b *BaseHost) GetPort() int {
	return b.Port
}

func (b *BaseHost) SetPort(port int) {
	b.Port = port
}

func (b *BaseHost) GetUser() string {
	return b.User
}

func (b *BaseHost) SetUser(u string) {
	b.User = u
}

func (b *BaseHost) GetPassword() string {
	return b.Password
}

func (b *BaseHost) SetPassword(password string) {
	b.Password = password
}

func (b *BaseHost) GetPrivateKey() string {
	return b.PrivateKey
}

func (b *BaseHost) GetPrivateKeyPath() string {
	return b.PrivateKeyPath
}

func (b *BaseHost) SetPrivateKeyPath(path string) {
	b.PrivateKeyPath = path
}

func (b *BaseHost) GetTimeout() time.Duration {
	return b.ConnectionTimeout
}

func (b *BaseHost) SetTimeout(timeout time.Duration) {
	b.ConnectionTimeout = timeout
}

func (b *BaseHost) GetGuests() []string {
	guests := make([]string, len(b.Guests))
	copy(guests, b.Guests)
	return guests
}

// AddGuest appends a container name or ID, ignoring blanks and duplicates.
func (b *BaseHost) AddGuest(guest string) {
	guest = strings.TrimSpace(guest)
	if guest == "" {
		return
	}
	for _, g := range b.Guests {
		if g == guest {
			return
		}
	}
	b.Guests = append(b.Guests, guest)
}

func (b *BaseHost) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("host name cannot be empty")
	}
	if strings.TrimSpace(b.Address) == "" {
		return fmt.Errorf("host address cannot be empty for host '%s'", b.Name)
	}
	if b.Port <= 0 || b.Port > 65535 {
		return fmt.Errorf("invalid port number %d for host '%s'", b.Port, b.Name)
	}
	if strings.TrimSpace(b.User) == "" {
		return fmt.Errorf("user cannot be empty for host '%s'", b.Name)
	}
	hasPassword := strings.TrimSpace(b.Password) != ""
	hasPrivateKey := strings.TrimSpace(b.PrivateKey) != ""
	hasPrivateKeyPath := strings.TrimSpace(b.PrivateKeyPath) != ""
	if !hasPassword && !hasPrivateKey && !hasPrivateKeyPath {
		return fmt.Errorf("authentication method (password, privateKey, or privateKeyPath) must be provided for host '%s'", b.Name)
	}
	for _, g := range b.Guests {
		if strings.ContainsAny(g, " '\"") {
			return fmt.Errorf("invalid guest '%s' for host '%s': must not contain spaces or quotes", g, b.Name)
		}
	}
	return nil
}

func (b *BaseHost) ID() string {
	if trimmedName := strings.TrimSpace(b.Name); trimmedName != "" {
		return trimmedName
	}
	if trimmedAddress := strings.TrimSpace(b.Address); trimmedAddress != "" && b.Port > 0 {
		return fmt.Sprintf("%s:%d", trimmedAddress, b.Port)
	}
	return fmt.Sprintf("unidentified-host-%p", b)
}
