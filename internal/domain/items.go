package domain

// PlayableItem is a file as known from local torrent metadata or from the
// server's canonical index. Index is the caller-facing logical position.
type PlayableItem struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

// FileItem is a file as reported in the protocol's own file list, which may be
// ordered differently from the PlayableItem list.
type FileItem struct {
	ID   int    `json:"id"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}
