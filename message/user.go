package message

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultUserName prefixes every generated throwaway identity.
const DefaultUserName = "anonymous"

// TempUser is a throwaway identity for exercising a mail flow without a
// real account.
type TempUser struct {
	Name  string
	Email string
}

// NewTempUser generates an anonymous identity under the given domain,
// e.g. anonymous_0b36d8aa41@localhost.com.
func NewTempUser(domain string) TempUser {
	frag := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	name := fmt.Sprintf("%v_%v", DefaultUserName, frag)
	return TempUser{
		Name:  name,
		Email: fmt.Sprintf("%v@%v", name, domain),
	}
}

// String returns the identity in the display form used for a From header,
// e.g. "anonymous_0b36d8aa41 <anonymous_0b36d8aa41@localhost.com>".
func (u TempUser) String() string {
	return fmt.Sprintf("%v <%v>", u.Name, u.Email)
}
