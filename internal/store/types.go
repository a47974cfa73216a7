package store

// Conversation represents an archived conversation.
type Conversation struct {
	Key                string
	IsGroup            bool
	Name               string
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents an archived message.
type Message struct {
	ID          int64
	ConvKey     string
	Ref         uint64
	Sender      string
	Body        string
	MessageType string
	Outgoing    bool
	Status      string
	Stamp       string
	CreatedAt   int64
}

// SendLogEntry records one send job and its outcome.
type SendLogEntry struct {
	ID         int64
	JobID      string
	ConvKey    string
	Ref        uint64
	Outcome    string // accepted, sent, failed
	Error      string
	CreatedAt  int64
	FinishedAt int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
