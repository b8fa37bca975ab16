package session

import (
	"strings"
	"time"
)

// Document is one open tab.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	WordCount int       `json:"word_count"`
	AIScore   *int      `json:"ai_score,omitempty"`
	Source    string    `json:"source,omitempty"`
	Hidden    bool      `json:"hidden,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upload is one entry of the uploaded-files list.
type Upload struct {
	Name       string    `json:"name"`
	DocID      string    `json:"doc_id"`
	Words      int       `json:"words"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// HasScore reports whether a score has been recorded.
func (d Document) HasScore() bool { return d.AIScore != nil }

// Score returns the recorded score, or 0 when absent.
func (d Document) Score() int {
	if d.AIScore == nil {
		return 0
	}
	return *d.AIScore
}

func (d *Document) clone() Document {
	c := *d
	if d.AIScore != nil {
		v := *d.AIScore
		c.AIScore = &v
	}
	return c
}

// CountWords counts whitespace-delimited tokens; blank text has 0 words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountWordsLegacy splits trimmed text on whitespace runs without dropping
// the empty token, so blank text counts as 1 word. Kept for snapshots
// produced by the browser editor.
func CountWordsLegacy(text string) int {
	n := len(strings.Fields(text))
	if n == 0 {
		return 1
	}
	return n
}

// ClampScore limits a score to [0,100].
func ClampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
