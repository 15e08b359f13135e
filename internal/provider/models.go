package provider

import "fmt"

type Kind string

const (
	KindSSH   Kind = "ssh"
	KindVMess Kind = "vmess"
	KindVLess Kind = "vless"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSSH, KindVMess, KindVLess:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown credential kind %q", s)
}

type CreateAccountRequest struct {
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
}

// Credential is the connection material returned by the panel. SSH accounts
// fill Host/Port/Username/Password, proxy accounts fill Link.
type Credential struct {
	Kind      Kind   `json:"kind"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Link      string `json:"link,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// Text renders the credential as plain text for chat and history.
func (c *Credential) Text() string {
	if c.Kind == KindSSH {
		s := fmt.Sprintf("SSH %s:%d\nuser: %s\npass: %s", c.Host, c.Port, c.Username, c.Password)
		if c.ExpiresAt != "" {
			s += "\nexpires: " + c.ExpiresAt
		}
		return s
	}
	return c.Link
}

// Wrapper for API responses
type APIResponse struct {
	Response Credential `json:"response"`
}
