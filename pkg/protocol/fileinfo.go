package protocol

// FileKind is the type of filesystem object a FileEntry describes.
type FileKind string

const (
	FileRegular   FileKind = "file"
	FileDirectory FileKind = "directory"
	FileSymlink   FileKind = "symlink"
)

// FileEntry describes one filesystem object, both inside a transfer
// manifest and in ls/tree/find results.
type FileEntry struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Kind   FileKind `json:"kind"`
	Size   int64    `json:"size"`
	Mtime  int64    `json:"mtime"`
	Mode   uint32   `json:"mode"`
	Depth  int      `json:"depth,omitempty"`
	Target string   `json:"target,omitempty"` // symlink target, unresolved
}

// OverwritePolicy governs whether a PUT overwrites an existing target.
type OverwritePolicy string

const (
	OverwritePrompt         OverwritePolicy = "prompt"
	OverwriteYes            OverwritePolicy = "yes"
	OverwriteNo             OverwritePolicy = "no"
	OverwriteNewer          OverwritePolicy = "newer"
	OverwriteDifferentSize  OverwritePolicy = "different-size"
)

// TransferDirection distinguishes GET (server->client) from PUT
// (client->server).
type TransferDirection string

const (
	DirectionGet TransferDirection = "get"
	DirectionPut TransferDirection = "put"
)

// TransferState is the lifecycle state of a Transfer.
type TransferState string

const (
	TransferCreated    TransferState = "created"
	TransferStreaming  TransferState = "streaming"
	TransferFinalised  TransferState = "finalised"
	TransferAborted    TransferState = "aborted"
)

// Manifest is the ordered list of FileEntries that opens a transfer.
type Manifest struct {
	Files      []FileEntry `json:"files"`
	TotalBytes int64       `json:"total_bytes"`
}

// FileHeader precedes each file's byte payload on the wire.
type FileHeader struct {
	Idx uint32 `json:"idx"`
	Len uint32 `json:"len"`
}

// PutFileAsk is sent by the client before a file's bytes when the
// target may already exist, so the server can arbitrate overwrite.
type PutFileAsk struct {
	Idx   uint32 `json:"idx"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
}

// PutFileDecision is the server's reply to a PutFileAsk.
type PutFileDecision string

const (
	DecisionAccept    PutFileDecision = "accept"
	DecisionSkip      PutFileDecision = "skip"
	DecisionUndecided PutFileDecision = "undecided"
)

// FileOutcome reports the terminal status of one manifest entry.
type FileOutcome struct {
	Idx    uint32 `json:"idx"`
	Path   string `json:"path"`
	Status string `json:"status"` // "ok", "skipped", "error"
	Error  string `json:"error,omitempty"`
}

// TransferOutcome is the trailing frame of a transfer.
type TransferOutcome struct {
	Outcome  string        `json:"outcome"` // "success", "aborted"
	FilesOK  int           `json:"files_ok"`
	FilesErr int           `json:"files_err"`
	BytesOK  int64         `json:"bytes_ok"`
	Errors   []FileOutcome `json:"errors,omitempty"`
}
