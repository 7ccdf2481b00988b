package protocol

// Method names for the control channel, per the method surface table.
const (
	MethodPing    = "ping"
	MethodInfo    = "info"
	MethodList    = "list"
	MethodAuth    = "auth"
	MethodOpen    = "open"
	MethodClose   = "close"
	MethodRpwd    = "rpwd"
	MethodRcd     = "rcd"
	MethodRls     = "rls"
	MethodRtree   = "rtree"
	MethodRmkdir  = "rmkdir"
	MethodRmv     = "rmv"
	MethodRcp     = "rcp"
	MethodRrm     = "rrm"
	MethodRfind   = "rfind"
	MethodGet     = "get"
	MethodPut     = "put"
	MethodPutDecision = "put_decision"
	MethodRexec   = "rexec"
	MethodRshell  = "rshell"
)

type PingArgs struct {
	Echo string `json:"echo,omitempty"`
}

type PingResult struct {
	Echo      string `json:"echo,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type InfoResult = ServerDescriptor

type ListResult struct {
	Sharings []SharingDescriptor `json:"sharings"`
}

type AuthArgs struct {
	Password string `json:"password"`
}

type OpenArgs struct {
	Name string `json:"name"`
}

type OpenResult struct {
	Name string `json:"name"`
}

type RcdArgs struct {
	Path string `json:"path"`
}

type RpwdResult struct {
	Path string `json:"path"`
}

// LsFlags controls listing order and filtering, shared by rls/rtree.
type LsFlags struct {
	DirsFirst    bool `json:"dirs_first,omitempty"`
	Reverse      bool `json:"reverse,omitempty"`
	SortBySize   bool `json:"sort_by_size,omitempty"`
	ShowHidden   bool `json:"show_hidden,omitempty"`
}

type RlsArgs struct {
	Path  string  `json:"path,omitempty"`
	Flags LsFlags `json:"flags,omitempty"`
}

type RlsResult struct {
	Entries []FileEntry `json:"entries"`
}

type RtreeArgs struct {
	Path     string  `json:"path,omitempty"`
	MaxDepth int     `json:"max_depth,omitempty"`
	Flags    LsFlags `json:"flags,omitempty"`
}

type RtreeResult struct {
	Entries []FileEntry `json:"entries"`
}

type RmkdirArgs struct {
	Path string `json:"path"`
}

type RmvArgs struct {
	Sources []string `json:"sources"`
	Dest    string   `json:"dest"`
}

type RcpArgs struct {
	Sources []string `json:"sources"`
	Dest    string   `json:"dest"`
}

type RrmArgs struct {
	Paths []string `json:"paths"`
}

// EntryOutcome reports the per-entry result of a batch filesystem op
// (mv/cp/rm), since a partial failure reports per-entry status rather
// than a single RPC failure.
type EntryOutcome struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type BatchResult struct {
	Results []EntryOutcome `json:"results"`
}

type RfindArgs struct {
	Pattern       string `json:"pattern"`
	CaseSensitive *bool  `json:"case_sensitive,omitempty"`
}

type RfindResult struct {
	Entries []FileEntry `json:"entries"`
}

type GetArgs struct {
	Paths           []string        `json:"paths"`
	OverwritePolicy OverwritePolicy `json:"overwrite_policy,omitempty"`
}

type PutArgs struct {
	OverwritePolicy OverwritePolicy `json:"overwrite_policy,omitempty"`
}

// TransferHandle is returned by get/put: the transfer-id plus the
// endpoint the client must connect to.
type TransferHandle struct {
	TransferID string `json:"transfer_id"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
}

type PutDecisionArgs struct {
	TransferID string          `json:"transfer_id"`
	FileIdx    uint32          `json:"file_idx"`
	Decision   PutFileDecision `json:"decision"`
}

type RexecArgs struct {
	Cmd []string `json:"cmd"`
}

type RexecResult struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}
