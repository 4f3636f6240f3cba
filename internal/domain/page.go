package domain

// FetchResult is the outcome of retrieving a single URL through the relay.
type FetchResult struct {
	URL             string `json:"url"`
	StatusCode      int    `json:"status_code"`
	Content         string `json:"content,omitempty"`
	ContentSize     int    `json:"content_size"`
	OriginalSize    int    `json:"original_size,omitempty"`
	Truncated       bool   `json:"truncated,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	ServedFromCache bool   `json:"served_from_cache,omitempty"`
	ElapsedMS       int64  `json:"elapsed_ms"`
}

// PageMetadata holds metadata extracted from an HTML document head.
type PageMetadata struct {
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Keywords    string            `json:"keywords,omitempty"`
	Author      string            `json:"author,omitempty"`
	Canonical   string            `json:"canonical,omitempty"`
	OpenGraph   map[string]string `json:"open_graph,omitempty"`
	Twitter     map[string]string `json:"twitter,omitempty"`
}

// LinkKind classifies a link relative to the page that contains it.
type LinkKind string

const (
	LinkInternal LinkKind = "internal"
	LinkExternal LinkKind = "external"
)

// Link is a hyperlink discovered in a page.
type Link struct {
	URL  string   `json:"url"`
	Text string   `json:"text,omitempty"`
	Kind LinkKind `json:"kind"`
}

// Document is the structured extraction of an HTML page.
type Document struct {
	Metadata PageMetadata `json:"metadata"`
	Links    []Link       `json:"links,omitempty"`
	Text     string       `json:"text,omitempty"`
}

// PageAnalysis summarizes the structure of a fetched page without a full
// extraction pass.
type PageAnalysis struct {
	ContentLength   int    `json:"content_length"`
	WordCount       int    `json:"word_count"`
	LineCount       int    `json:"line_count"`
	HasForms        bool   `json:"has_forms"`
	HasScripts      bool   `json:"has_scripts"`
	HasImages       bool   `json:"has_images"`
	HasLinks        bool   `json:"has_links"`
	Title           string `json:"title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
}
