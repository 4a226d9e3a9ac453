package media

// FileType is the artifact format recorded in a workflow context entry.
type FileType string

const (
	FileMP4  FileType = "mp4"
	FileWAV  FileType = "wav"
	FileJSON FileType = "json"
)

// Entry records the artifact a stage produced. The zero Entry means the
// stage has not run for the workflow.
type Entry struct {
	FilePath      string   `json:"filePath,omitempty"`
	ExtensionFile FileType `json:"extensionFile,omitempty"`
}

// IsEmpty reports whether e is the "not yet run" entry.
func (e Entry) IsEmpty() bool {
	return e.FilePath == ""
}

// ResourceKind maps the artifact format to the asset host's resource kind:
// audio and video go under "video", everything else under "raw".
func (t FileType) ResourceKind() string {
	switch t {
	case FileMP4, FileWAV:
		return "video"
	default:
		return "raw"
	}
}
