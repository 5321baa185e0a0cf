package verify

import "strings"

// JoinRequest is a request to enter a gated chat. The requester's private
// chat shares its id with UserID.
type JoinRequest struct {
	ChatID    int64
	ChatTitle string
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

func (r JoinRequest) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// Reply is a free-text message that may answer a pending DNI prompt.
type Reply struct {
	ChatID  int64
	Private bool
	UserID  int64
	Text    string
}

// ParseDNI upper-cases the reply and accepts it only when it is made of
// digits and letters, without separators. Surrounding whitespace is dropped.
func ParseDNI(text string) (string, error) {
	dni := strings.ToUpper(strings.TrimSpace(text))
	if dni == "" {
		return "", ErrMalformedReply
	}
	for _, r := range dni {
		if !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z') {
			return "", ErrMalformedReply
		}
	}
	return dni, nil
}
