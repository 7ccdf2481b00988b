package protocol

import "strconv"

// SharingKind distinguishes a single-file sharing from a directory
// sharing.
type SharingKind string

const (
	SharingFile      SharingKind = "file"
	SharingDirectory SharingKind = "directory"
)

// SharingDescriptor is the client-visible view of a Sharing, as
// advertised by discovery, `info` and `list`.
type SharingDescriptor struct {
	Name     string      `json:"name"`
	Kind     SharingKind `json:"kind"`
	ReadOnly bool        `json:"read_only"`
}

// ServerDescriptor is the payload of a discovery reply and of the
// `info` RPC response.
type ServerDescriptor struct {
	Name         string              `json:"name"`
	Address      string              `json:"address"`
	Port         int                 `json:"port"`
	DiscoverPort int                 `json:"discover_port"`
	SSL          bool                `json:"ssl"`
	Auth         bool                `json:"auth"`
	Rexec        bool                `json:"rexec"`
	Version      string              `json:"version"`
	Sharings     []SharingDescriptor `json:"sharings"`
}

// Key identifies a server instance for client-side caching, per the
// name+address+port invariant in the data model.
func (d ServerDescriptor) Key() string {
	return d.Name + "@" + d.Address + ":" + strconv.Itoa(d.Port)
}
