package conn

// Role is the device's part in the group. A device is never server and
// client at the same time.
type Role int

const (
	RoleUnset Role = iota
	RoleServer
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unset"
	}
}
