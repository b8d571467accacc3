package domain

// Attachment references a file sent by the remote party. Either Data holds
// the content inline or URL points to where it can be fetched.
type Attachment struct {
	FileName string `json:"file_name"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}
